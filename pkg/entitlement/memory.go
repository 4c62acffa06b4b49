package entitlement

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node
// development.
type MemoryStore struct {
	mu     sync.RWMutex
	grants []Grant
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, g Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants = append(s.grants, g)
	return nil
}

func (s *MemoryStore) Newest(_ context.Context, userID, resourceID string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *Grant
	for i := range s.grants {
		g := s.grants[i]
		if g.UserID != userID || g.ResourceID != resourceID {
			continue
		}
		if newest == nil || g.ExpiresAt.After(newest.ExpiresAt) {
			copied := g
			newest = &copied
		}
	}
	return newest, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Grant
	for _, g := range s.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	return out, nil
}

func (s *MemoryStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.grants[:0]
	var deleted int64
	for _, g := range s.grants {
		if g.ExpiresAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, g)
	}
	s.grants = kept
	return deleted, nil
}
