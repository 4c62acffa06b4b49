package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vuraweg/prepgate/pkg/credential"
)

// Registry maps browsing-context IDs to managers. Contexts that go
// quiet are evicted by the LRU and their managers closed, so abandoned
// tabs do not leak scheduler goroutines.
type Registry struct {
	deps      Deps
	cfg       Config
	ephemeral *credential.EphemeralTier
	persist   *credential.PersistentTier

	mu  sync.Mutex
	lru *expirable.LRU[string, *Manager]
}

// NewRegistry creates a registry holding at most maxContexts managers,
// each idle-expiring after ttl. persistent may be nil when Redis is not
// configured; those contexts run ephemeral-only.
func NewRegistry(deps Deps, cfg Config, maxContexts int, ttl time.Duration, ephemeral *credential.EphemeralTier, persistent *credential.PersistentTier) *Registry {
	r := &Registry{
		deps:      deps,
		cfg:       cfg,
		ephemeral: ephemeral,
		persist:   persistent,
	}
	r.lru = expirable.NewLRU[string, *Manager](maxContexts, r.onEvict, ttl)
	return r
}

func (r *Registry) onEvict(contextID string, m *Manager) {
	m.Close()
	if r.deps.Metrics != nil {
		r.deps.Metrics.SessionsActive.Dec()
	}
	r.deps.Logger.WithField("context_id", contextID).Debug("Session manager evicted")
}

// GetOrCreate returns the manager for the browsing context, creating it
// with a context-scoped credential store on first sight.
func (r *Registry) GetOrCreate(contextID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.lru.Get(contextID); ok {
		return m
	}

	deps := r.deps
	deps.Credentials = credential.NewStore(contextID, r.ephemeral, r.persist)
	deps.Logger = r.deps.Logger.WithField("context_id", contextID)

	m := NewManager(deps, r.cfg)
	r.lru.Add(contextID, m)
	if r.deps.Metrics != nil {
		r.deps.Metrics.SessionsActive.Inc()
	}
	return m
}

// Remove drops the browsing context's manager and closes it. Used when
// a context cookie is invalidated server-side.
func (r *Registry) Remove(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Remove(contextID)
}

// Len reports the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Len()
}

// Close evicts every manager. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Purge()
}
