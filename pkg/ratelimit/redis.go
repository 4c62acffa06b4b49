package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix = "prepgate:ratelimit:"

	// watchRetries bounds optimistic-transaction retries when gateway
	// replicas race on the same ledger. Exhaustion surfaces as a store
	// error, which the limiter answers by failing open.
	watchRetries = 10
)

// RedisStore is a Store shared across gateway replicas. Updates run
// under WATCH so each identifier's read-modify-write is atomic.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed ledger store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("ledger get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("corrupt ledger entry %s: %w", key, err)
	}
	return &entry, nil
}

func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn func(*Entry) *Entry) (*Entry, error) {
	fullKey := redisKeyPrefix + key

	var result *Entry
	txf := func(tx *redis.Tx) error {
		var cur *Entry
		data, err := tx.Get(ctx, fullKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var entry Entry
			// A corrupt payload reads as absent and gets overwritten.
			if jsonErr := json.Unmarshal([]byte(data), &entry); jsonErr == nil {
				cur = &entry
			}
		}

		next := fn(cur)
		result = next

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, fullKey)
				return nil
			}
			payload, marshalErr := json.Marshal(next)
			if marshalErr != nil {
				return marshalErr
			}
			pipe.Set(ctx, fullKey, payload, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, fullKey)
		if err == nil {
			return result, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return nil, fmt.Errorf("ledger update failed: %w", err)
	}
	return nil, fmt.Errorf("ledger update for %s conflicted %d times", key, watchRetries)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("ledger delete failed: %w", err)
	}
	return nil
}

// Prune removes ledgers whose last attempt predates cutoff and that hold
// no active lock. Writes carry a TTL so Redis usually expires these on
// its own; the sweep catches entries written without one (for example
// by older gateway builds) and keeps SCAN-based audits clean. Returns
// the number of ledgers removed.
func (s *RedisStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		removed int
		cursor  uint64
	)
	now := time.Now()

	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("ledger scan failed: %w", err)
		}

		for _, fullKey := range keys {
			data, err := s.client.Get(ctx, fullKey).Result()
			if err == redis.Nil {
				continue
			} else if err != nil {
				return removed, fmt.Errorf("ledger get during prune failed: %w", err)
			}

			var entry Entry
			if jsonErr := json.Unmarshal([]byte(data), &entry); jsonErr != nil {
				// A corrupt payload is stale by definition.
				if err := s.client.Del(ctx, fullKey).Err(); err != nil {
					return removed, fmt.Errorf("ledger prune delete failed: %w", err)
				}
				removed++
				continue
			}
			if entry.LockedUntil.After(now) || entry.LastAttempt.After(cutoff) {
				continue
			}
			if err := s.client.Del(ctx, fullKey).Err(); err != nil {
				return removed, fmt.Errorf("ledger prune delete failed: %w", err)
			}
			removed++
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
