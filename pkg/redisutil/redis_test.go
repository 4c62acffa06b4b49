package redisutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// setupClientTest creates a miniredis instance and returns the client and cleanup function
func setupClientTest(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	config := Config{
		URL:        "redis://" + mr.Addr(),
		DB:         0,
		MaxRetries: 3,
		PoolSize:   10,
	}

	client, err := NewClient(config)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, mr, cleanup
}

func TestNewClient_Success(t *testing.T) {
	client, _, cleanup := setupClientTest(t)
	defer cleanup()

	if client == nil {
		t.Fatal("Expected client to be non-nil")
	}
	if client.GetClient() == nil {
		t.Fatal("Expected underlying redis client to be non-nil")
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "invalid://url"})
	if err == nil {
		t.Fatal("Expected error for invalid Redis URL")
	}
}

func TestNewClient_ConnectionFailure(t *testing.T) {
	_, err := NewClient(Config{URL: "redis://localhost:1"})
	if err == nil {
		t.Fatal("Expected error for unreachable Redis server")
	}
}

type sessionRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func TestGetSetJSON(t *testing.T) {
	client, _, cleanup := setupClientTest(t)
	defer cleanup()

	ctx := context.Background()
	want := sessionRecord{UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}

	if err := client.SetJSON(ctx, "cred:ctx-1", want, time.Hour); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got sessionRecord
	found, err := client.GetJSON(ctx, "cred:ctx-1", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !found {
		t.Fatal("Expected key to be found")
	}
	if got.UserID != want.UserID {
		t.Errorf("Expected user %q, got %q", want.UserID, got.UserID)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("Expected expiry %v, got %v", want.ExpiresAt, got.ExpiresAt)
	}
}

func TestGetJSON_Miss(t *testing.T) {
	client, _, cleanup := setupClientTest(t)
	defer cleanup()

	var got sessionRecord
	found, err := client.GetJSON(context.Background(), "cred:missing", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Fatal("Expected cache miss")
	}
}

func TestGetJSON_CorruptPayloadDeleted(t *testing.T) {
	client, mr, cleanup := setupClientTest(t)
	defer cleanup()

	mr.Set("cred:bad", "{not json")

	var got sessionRecord
	_, err := client.GetJSON(context.Background(), "cred:bad", &got)
	if err == nil {
		t.Fatal("Expected error for corrupt payload")
	}

	if mr.Exists("cred:bad") {
		t.Error("Expected corrupt key to be deleted")
	}
}

func TestSetJSON_TTL(t *testing.T) {
	client, mr, cleanup := setupClientTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := client.SetJSON(ctx, "cred:ttl", sessionRecord{UserID: "u"}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	var got sessionRecord
	found, err := client.GetJSON(ctx, "cred:ttl", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Fatal("Expected key to expire")
	}
}

func TestDel(t *testing.T) {
	client, _, cleanup := setupClientTest(t)
	defer cleanup()

	ctx := context.Background()
	if err := client.SetJSON(ctx, "cred:a", sessionRecord{UserID: "u"}, 0); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	if err := client.Del(ctx, "cred:a", "cred:never-existed"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}

	var got sessionRecord
	found, _ := client.GetJSON(ctx, "cred:a", &got)
	if found {
		t.Fatal("Expected key to be deleted")
	}

	// Deleting nothing is a no-op
	if err := client.Del(ctx); err != nil {
		t.Fatalf("Empty Del failed: %v", err)
	}
}

func TestSetNX(t *testing.T) {
	client, _, cleanup := setupClientTest(t)
	defer cleanup()

	ctx := context.Background()

	acquired, err := client.SetNX(ctx, "lock:sweep", "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if !acquired {
		t.Fatal("Expected first SetNX to acquire the lock")
	}

	acquired, err = client.SetNX(ctx, "lock:sweep", "owner-2", time.Minute)
	if err != nil {
		t.Fatalf("SetNX failed: %v", err)
	}
	if acquired {
		t.Fatal("Expected second SetNX to be refused while lock held")
	}
}

func TestPing(t *testing.T) {
	client, mr, cleanup := setupClientTest(t)
	defer cleanup()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("Expected ping to fail after server shutdown")
	}
}
