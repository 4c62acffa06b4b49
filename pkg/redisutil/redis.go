package redisutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis connection configuration
type Config struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// DefaultConfig returns a config suitable for local development
func DefaultConfig() Config {
	return Config{
		URL:        "redis://localhost:6379/0",
		DB:         -1,
		MaxRetries: 3,
		PoolSize:   10,
	}
}

// Client wraps a Redis connection with JSON helpers shared by the
// credential and rate-limit stores
type Client struct {
	client *redis.Client
}

// NewClient creates a new Redis client and verifies connectivity
func NewClient(config Config) (*Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB >= 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	// Set connection timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewClientFromRedis wraps an existing Redis connection. Used by tests
// that back the client with miniredis.
func NewClientFromRedis(client *redis.Client) *Client {
	return &Client{client: client}
}

// GetJSON retrieves a key and unmarshals it into dest. Returns false
// without error on a cache miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		// Corrupt payloads are deleted so the next read misses cleanly
		c.client.Del(ctx, key)
		return false, fmt.Errorf("failed to unmarshal key %s: %w", key, err)
	}

	return true, nil
}

// SetJSON marshals a value and stores it under key with the given TTL.
// A zero TTL stores the key without expiration.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal key %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Del removes the given keys
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// SetNX sets a key only if it doesn't exist (for distributed locks)
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for health checks and
// callers that need WATCH transactions
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// GetPoolStats returns connection pool statistics
func (c *Client) GetPoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
