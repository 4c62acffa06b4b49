package credential

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vuraweg/prepgate/pkg/redisutil"
)

const redisKeyPrefix = "prepgate:credential:"

// ErrNoPersistentTier is returned by Put when a persistent write is
// requested but Redis is not configured.
var ErrNoPersistentTier = errors.New("credential: persistent tier not configured")

// EphemeralTier is the process-wide in-memory tier, shared by every
// browsing context and keyed by context ID. The TTL should track the
// session lifetime; the size bound caps memory under context churn.
type EphemeralTier struct {
	cache *lru.LRU[string, Record]
}

// NewEphemeralTier creates the in-memory tier.
func NewEphemeralTier(maxEntries int, ttl time.Duration) *EphemeralTier {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EphemeralTier{
		cache: lru.NewLRU[string, Record](maxEntries, nil, ttl),
	}
}

func (t *EphemeralTier) put(key string, rec Record) {
	t.cache.Add(key, rec)
}

func (t *EphemeralTier) get(key string) (Record, bool) {
	return t.cache.Get(key)
}

func (t *EphemeralTier) clear(key string) {
	t.cache.Remove(key)
}

// PersistentTier is the Redis-backed tier. Records carry a TTL equal to
// the refresh-proof lifetime so abandoned sessions age out on their own.
type PersistentTier struct {
	client *redisutil.Client
	ttl    time.Duration
}

// NewPersistentTier creates the Redis tier.
func NewPersistentTier(client *redisutil.Client, ttl time.Duration) *PersistentTier {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &PersistentTier{client: client, ttl: ttl}
}

// A nil tier is a valid ephemeral-only deployment: writes report the
// tier as unavailable, reads and clears are no-ops.
func (t *PersistentTier) put(ctx context.Context, key string, rec Record) error {
	if t == nil {
		return ErrNoPersistentTier
	}
	return t.client.SetJSON(ctx, redisKeyPrefix+key, rec, t.ttl)
}

func (t *PersistentTier) get(ctx context.Context, key string) (Record, bool, error) {
	if t == nil {
		return Record{}, false, nil
	}
	var rec Record
	found, err := t.client.GetJSON(ctx, redisKeyPrefix+key, &rec)
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

func (t *PersistentTier) clear(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}
	return t.client.Del(ctx, redisKeyPrefix+key)
}

// TieredStore implements Store for a single browsing context over the
// shared tiers.
type TieredStore struct {
	key        string
	ephemeral  *EphemeralTier
	persistent *PersistentTier
}

// NewStore creates the store view for one browsing context.
func NewStore(contextID string, ephemeral *EphemeralTier, persistent *PersistentTier) *TieredStore {
	return &TieredStore{
		key:        contextID,
		ephemeral:  ephemeral,
		persistent: persistent,
	}
}

func (s *TieredStore) Put(ctx context.Context, rec Record, lifetime Lifetime) error {
	if lifetime == LifetimePersistent {
		err := s.persistent.put(ctx, s.key, rec)
		if err == nil || !errors.Is(err, ErrNoPersistentTier) {
			return err
		}
		// Without Redis a remembered login degrades to the ephemeral
		// tier: the session survives, it just won't outlive the process.
	}
	s.ephemeral.put(s.key, rec)
	return nil
}

func (s *TieredStore) Get(ctx context.Context) (Record, Lifetime, bool, error) {
	rec, found, perErr := s.persistent.get(ctx, s.key)
	if perErr == nil && found {
		return rec, LifetimePersistent, true, nil
	}

	// A persistent read error falls through to the ephemeral tier; the
	// error surfaces only when that tier is empty too.
	if rec, found := s.ephemeral.get(s.key); found {
		return rec, LifetimeEphemeral, true, nil
	}

	if perErr != nil {
		return Record{}, LifetimeEphemeral, false, perErr
	}
	return Record{}, LifetimeEphemeral, false, nil
}

func (s *TieredStore) Clear(ctx context.Context) error {
	s.ephemeral.clear(s.key)
	return s.persistent.clear(ctx, s.key)
}
