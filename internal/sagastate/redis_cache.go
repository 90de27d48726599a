package sagastate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is the distributed cacheBackend for multi-instance
// coordinators sharing one saga state cache.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// NewRedisCache creates a RedisCache. The background ctx is used for cache
// operations since cacheBackend's interface predates context plumbing in
// CachedStore; callers that need per-call cancellation should not rely on
// the cache overlay honoring it (a cache miss falls through to the raw
// Store, which does honor ctx).
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ctx: context.Background(), prefix: "dispatch:saga:"}
}

func (r *RedisCache) get(sagaID string) (Instance, bool) {
	raw, err := r.client.Get(r.ctx, r.prefix+sagaID).Bytes()
	if err != nil {
		return Instance{}, false
	}
	var inst Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return Instance{}, false
	}
	return inst, true
}

func (r *RedisCache) set(sagaID string, instance Instance, ttl time.Duration) {
	raw, err := json.Marshal(instance)
	if err != nil {
		return
	}
	r.client.Set(r.ctx, r.prefix+sagaID, raw, ttl)
}

func (r *RedisCache) invalidate(sagaID string) {
	r.client.Del(r.ctx, r.prefix+sagaID)
}
