package profile

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node
// development.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]StoredProfile
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]StoredProfile)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (StoredProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return StoredProfile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p StoredProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.profiles[p.UserID] = p
	return nil
}
