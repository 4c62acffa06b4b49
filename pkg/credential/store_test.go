package credential

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuraweg/prepgate/pkg/redisutil"
)

func setupTiers(t *testing.T) (*EphemeralTier, *PersistentTier, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ephemeral := NewEphemeralTier(100, time.Hour)
	persistent := NewPersistentTier(redisutil.NewClientFromRedis(client), time.Hour)
	return ephemeral, persistent, mr
}

func sampleRecord(userID string) Record {
	return Record{
		AccessProof:  "access-" + userID,
		RefreshProof: "refresh-" + userID,
		UserID:       userID,
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
}

func TestPutGet_Ephemeral(t *testing.T) {
	ephemeral, persistent, _ := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)
	ctx := context.Background()

	rec := sampleRecord("user-1")
	require.NoError(t, store.Put(ctx, rec, LifetimeEphemeral))

	got, lifetime, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, LifetimeEphemeral, lifetime)
}

func TestPutGet_Persistent(t *testing.T) {
	ephemeral, persistent, mr := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)
	ctx := context.Background()

	rec := sampleRecord("user-1")
	require.NoError(t, store.Put(ctx, rec, LifetimePersistent))

	got, lifetime, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.UserID, got.UserID)
	assert.Equal(t, rec.AccessProof, got.AccessProof)
	assert.Equal(t, LifetimePersistent, lifetime)

	// Persistent records live in Redis, not process memory.
	assert.True(t, mr.Exists(redisKeyPrefix+"ctx-1"))
	_, inMemory := ephemeral.get("ctx-1")
	assert.False(t, inMemory)
}

func TestGet_PersistentPrecedence(t *testing.T) {
	ephemeral, persistent, _ := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)
	ctx := context.Background()

	stale := sampleRecord("stale-user")
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	fresh := sampleRecord("fresh-user")

	// Fresher record in the ephemeral tier must still lose.
	require.NoError(t, store.Put(ctx, stale, LifetimePersistent))
	require.NoError(t, store.Put(ctx, fresh, LifetimeEphemeral))

	got, lifetime, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "stale-user", got.UserID)
	assert.Equal(t, LifetimePersistent, lifetime)
}

func TestGet_EmptyBothTiers(t *testing.T) {
	ephemeral, persistent, _ := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)

	got, _, ok, err := store.Get(context.Background())
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Record{}, got)
}

func TestGet_PersistentErrorFallsThrough(t *testing.T) {
	ephemeral, persistent, mr := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)
	ctx := context.Background()

	rec := sampleRecord("user-1")
	require.NoError(t, store.Put(ctx, rec, LifetimeEphemeral))

	// Redis down: the ephemeral record still serves.
	mr.Close()

	got, lifetime, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, LifetimeEphemeral, lifetime)
}

func TestGet_ErrorOnlyWhenBothFail(t *testing.T) {
	ephemeral, persistent, mr := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)

	mr.Close()

	_, _, ok, err := store.Get(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestClear_RemovesBothTiers(t *testing.T) {
	ephemeral, persistent, mr := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleRecord("a"), LifetimeEphemeral))
	require.NoError(t, store.Put(ctx, sampleRecord("b"), LifetimePersistent))

	require.NoError(t, store.Clear(ctx))

	_, _, ok, err := store.Get(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(redisKeyPrefix+"ctx-1"))

	// Clearing again is a no-op.
	assert.NoError(t, store.Clear(ctx))
}

func TestStores_IsolatedByContext(t *testing.T) {
	ephemeral, persistent, _ := setupTiers(t)
	ctx := context.Background()

	one := NewStore("ctx-1", ephemeral, persistent)
	two := NewStore("ctx-2", ephemeral, persistent)

	require.NoError(t, one.Put(ctx, sampleRecord("user-1"), LifetimeEphemeral))

	_, _, ok, err := two.Get(ctx)
	assert.NoError(t, err)
	assert.False(t, ok, "records must not leak across browsing contexts")
}

func TestEphemeralTier_Expires(t *testing.T) {
	_, persistent, _ := setupTiers(t)
	ephemeral := NewEphemeralTier(100, 50*time.Millisecond)
	store := NewStore("ctx-1", ephemeral, persistent)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleRecord("user-1"), LifetimeEphemeral))

	time.Sleep(80 * time.Millisecond)

	_, _, ok, err := store.Get(ctx)
	assert.NoError(t, err)
	assert.False(t, ok, "ephemeral record should expire with its TTL")
}

func TestLifetimeString(t *testing.T) {
	assert.Equal(t, "ephemeral", LifetimeEphemeral.String())
	assert.Equal(t, "persistent", LifetimePersistent.String())
	assert.Equal(t, "unknown", Lifetime(99).String())
}

func TestPut_PersistentWithoutRedisDegrades(t *testing.T) {
	ephemeral := NewEphemeralTier(100, time.Hour)
	store := NewStore("ctx-1", ephemeral, nil)
	ctx := context.Background()

	rec := sampleRecord("user-1")
	require.NoError(t, store.Put(ctx, rec, LifetimePersistent))

	// With no persistent tier the record must still land somewhere.
	got, lifetime, ok, err := store.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, LifetimeEphemeral, lifetime)
}

func TestPut_PersistentRedisErrorSurfaces(t *testing.T) {
	ephemeral, persistent, mr := setupTiers(t)
	store := NewStore("ctx-1", ephemeral, persistent)

	mr.Close()

	// A configured-but-failing tier is a real error, not a degrade.
	err := store.Put(context.Background(), sampleRecord("user-1"), LifetimePersistent)
	assert.Error(t, err)
	_, inMemory := ephemeral.get("ctx-1")
	assert.False(t, inMemory)
}
