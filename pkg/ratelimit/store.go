package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Store persists attempt ledger entries. Update must apply fn atomically
// per key: fn receives the current entry (nil when absent) and returns
// the entry to persist, or nil to delete. Implementations may invoke fn
// more than once when resolving write conflicts, so fn must be pure with
// respect to its input.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn func(*Entry) *Entry) (*Entry, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a single-process Store backed by an expirable LRU; the
// cache TTL bounds how long idle ledgers are remembered, and the size
// bound caps memory under identifier-spraying abuse.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.LRU[string, Entry]
}

// NewMemoryStore creates a memory store holding at most maxEntries
// ledgers for up to ttl each. The TTL should be at least the policy's
// MaxLockout plus ProgressiveWindow so active locks never vanish early.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &MemoryStore{
		entries: lru.NewLRU[string, Entry](maxEntries, nil, ttl),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

// Update ignores the per-write TTL; the LRU's fixed TTL governs expiry
// and is refreshed on every write.
func (s *MemoryStore) Update(_ context.Context, key string, _ time.Duration, fn func(*Entry) *Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *Entry
	if entry, ok := s.entries.Get(key); ok {
		copied := entry
		cur = &copied
	}

	next := fn(cur)
	if next == nil {
		s.entries.Remove(key)
		return nil, nil
	}

	s.entries.Add(key, *next)
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries.Remove(key)
	return nil
}
