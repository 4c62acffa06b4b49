package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsTotal *prometheus.CounterVec
	LockoutsTotal     *prometheus.CounterVec
	LedgerFailOpen    *prometheus.CounterVec

	// Session metrics
	SessionsActive         prometheus.Gauge
	SessionTransitions     *prometheus.CounterVec
	RefreshTotal           *prometheus.CounterVec
	RefreshCoalescedTotal  prometheus.Counter
	InitializeTimeoutTotal prometheus.Counter

	// Identity provider metrics
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// Entitlement metrics
	GrantsCreatedTotal      *prometheus.CounterVec
	EntitlementChecksTotal  *prometheus.CounterVec
	GrantAmountCentsTotal   prometheus.Counter
	EntitlementStoreErrors  prometheus.Counter

	// Connection metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	RedisConnectionsActive prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prepgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prepgate_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_auth_attempts_total",
				Help: "Authentication attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		LockoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_lockouts_total",
				Help: "Rate-limit lockouts triggered, by ledger scope",
			},
			[]string{"scope"},
		),
		LedgerFailOpen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_ledger_fail_open_total",
				Help: "Rate-ledger store errors answered by failing open",
			},
			[]string{"op"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prepgate_sessions_active",
				Help: "Session managers currently registered",
			},
		),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_session_transitions_total",
				Help: "Session state transitions by resulting state",
			},
			[]string{"state"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_refresh_total",
				Help: "Credential refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		RefreshCoalescedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prepgate_refresh_coalesced_total",
				Help: "Refresh callers coalesced onto an in-flight refresh",
			},
		),
		InitializeTimeoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prepgate_initialize_timeout_total",
				Help: "Session initializations resolved anonymous by deadline",
			},
		),

		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_provider_requests_total",
				Help: "Identity provider calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prepgate_provider_request_duration_seconds",
				Help:    "Identity provider call duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"op"},
		),

		GrantsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_grants_created_total",
				Help: "Entitlement grants created, by kind",
			},
			[]string{"kind"},
		),
		EntitlementChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepgate_entitlement_checks_total",
				Help: "Entitlement validity checks by verdict",
			},
			[]string{"verdict"},
		),
		GrantAmountCentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prepgate_grant_amount_cents_total",
				Help: "Sum of amounts attached to created grants, in cents",
			},
		),
		EntitlementStoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "prepgate_entitlement_store_errors_total",
				Help: "Grant store errors answered by failing closed",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prepgate_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prepgate_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prepgate_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthAttemptsTotal,
		m.LockoutsTotal,
		m.LedgerFailOpen,
		m.SessionsActive,
		m.SessionTransitions,
		m.RefreshTotal,
		m.RefreshCoalescedTotal,
		m.InitializeTimeoutTotal,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
		m.GrantsCreatedTotal,
		m.EntitlementChecksTotal,
		m.GrantAmountCentsTotal,
		m.EntitlementStoreErrors,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.RedisConnectionsActive,
	)

	return m
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
