package sagastate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client)
}

func TestRedisCache_SetGetInvalidate(t *testing.T) {
	rc := newTestRedisCache(t)

	_, ok := rc.get("s1")
	require.False(t, ok)

	rc.set("s1", Instance{SagaID: "s1", SagaType: "T"}, time.Minute)
	inst, ok := rc.get("s1")
	require.True(t, ok)
	require.Equal(t, "T", inst.SagaType)

	rc.invalidate("s1")
	_, ok = rc.get("s1")
	require.False(t, ok)
}

func TestRedisCache_GetMissingKeyIsAMiss(t *testing.T) {
	rc := newTestRedisCache(t)

	_, ok := rc.get("does-not-exist")
	require.False(t, ok)
}

func TestRedisCache_SetHonorsTTL(t *testing.T) {
	// miniredis expires keys only when its clock is fast-forwarded, so this
	// test keeps a handle on the server.
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc := NewRedisCache(client)

	rc.set("s1", Instance{SagaID: "s1", SagaType: "T"}, 10*time.Millisecond)
	_, ok := rc.get("s1")
	require.True(t, ok)

	server.FastForward(30 * time.Millisecond)
	_, ok = rc.get("s1")
	require.False(t, ok)
}

func TestCachedStore_UsesRedisCacheWhenConfigured(t *testing.T) {
	rc := newTestRedisCache(t)
	raw := newFakeStore()
	store := NewCachedStore(raw, rc, CacheOptions{EnableCaching: true, UseLocalCache: false, DefaultCacheTTL: time.Minute})

	inst := Instance{SagaID: "s1", SagaType: "T"}
	require.NoError(t, raw.Save(context.Background(), inst))

	loaded, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "T", loaded.SagaType)

	cached, ok := rc.get("s1")
	require.True(t, ok)
	require.Equal(t, "T", cached.SagaType)
}
