package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

// ProbeFunc checks one dependency; nil error means reachable.
type ProbeFunc func(ctx context.Context) error

// HealthChecker probes the gateway's dependencies
type HealthChecker struct {
	db       *sql.DB
	redis    *redis.Client
	provider ProbeFunc
}

// NewHealthChecker creates a new health checker. Any dependency may be nil;
// nil dependencies are skipped.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, provider ProbeFunc) *HealthChecker {
	return &HealthChecker{
		db:       db,
		redis:    redisClient,
		provider: provider,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns 200 whenever the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness probes all dependencies; 503 when unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check probes every configured dependency in parallel.
//
// Postgres is required: its failure marks the gateway unhealthy. Redis and
// the identity provider only degrade readiness; sessions keep limping along
// without them (rate limiting fails open, logins fail with classified
// network errors).
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	var mu sync.Mutex
	record := func(name string, dep DependencyStatus, required bool) {
		mu.Lock()
		defer mu.Unlock()
		status.Dependencies[name] = dep
		if dep.Status != StatusUnhealthy {
			return
		}
		if required {
			status.Status = StatusUnhealthy
		} else if status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if h.db != nil {
		g.Go(func() error {
			record("postgres", h.checkDatabase(gctx), true)
			return nil
		})
	}
	if h.redis != nil {
		g.Go(func() error {
			record("redis", probe(gctx, func(c context.Context) error {
				return h.redis.Ping(c).Err()
			}), false)
			return nil
		})
	}
	if h.provider != nil {
		g.Go(func() error {
			record("identity_provider", probe(gctx, h.provider), false)
			return nil
		})
	}

	g.Wait()
	return status
}

func probe(ctx context.Context, fn ProbeFunc) DependencyStatus {
	start := time.Now()
	err := fn(ctx)
	dep := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	dep := probe(ctx, func(c context.Context) error {
		if err := h.db.PingContext(c); err != nil {
			return err
		}
		var one int
		return h.db.QueryRowContext(c, "SELECT 1").Scan(&one)
	})
	if dep.Status != StatusHealthy {
		return dep
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		dep.Status = StatusDegraded
		dep.Message = "connection pool exhausted"
	}
	return dep
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
