package sagastate

import (
	"context"
	"time"
)

// CacheOptions configures the cache overlay. The zero value disables
// caching.
type CacheOptions struct {
	EnableCaching bool
	// UseLocalCache selects an in-process cache; false selects the
	// distributed (Redis) overlay instead.
	UseLocalCache bool
	LocalCacheSizeLimit int
	DefaultCacheTTL     time.Duration
	// ActiveSagaCacheTTL is used while the cached instance is open
	// (short-lived, since open sagas mutate frequently).
	ActiveSagaCacheTTL time.Duration
	// CompletedSagaCacheTTL is used once the instance is closed
	// (long-lived: a completed saga is immutable).
	CompletedSagaCacheTTL time.Duration
	// InvalidateCacheOnUpdate selects strict invalidation (drop the entry
	// on write) over optimistic refresh (replace the entry on write).
	InvalidateCacheOnUpdate bool
}

// cacheBackend is the minimal key-value contract both the local and
// distributed overlays satisfy; it lets CachedStore stay agnostic to which
// one backs it.
type cacheBackend interface {
	get(sagaID string) (Instance, bool)
	set(sagaID string, instance Instance, ttl time.Duration)
	invalidate(sagaID string)
}

// CachedStore wraps a raw Store with a read-through, write-invalidate (or
// write-refresh) cache. For writes made through it, it never serves a cached
// closed saga as open or vice versa: every Save and UpdateConditional drops
// or replaces the entry, and TTL is chosen per instance from IsCompleted at
// cache time. A cache hit is returned as is, without re-reading the stored
// row, so a write made through another handle is seen only once the entry
// expires.
type CachedStore struct {
	Store
	opts    CacheOptions
	backend cacheBackend
}

// NewCachedStore wraps store with a cache overlay using backend (a
// *LocalCache or *RedisCache) per opts.UseLocalCache.
func NewCachedStore(store Store, backend cacheBackend, opts CacheOptions) *CachedStore {
	if opts.ActiveSagaCacheTTL <= 0 {
		opts.ActiveSagaCacheTTL = opts.DefaultCacheTTL
	}
	if opts.CompletedSagaCacheTTL <= 0 {
		opts.CompletedSagaCacheTTL = opts.DefaultCacheTTL
	}
	return &CachedStore{Store: store, opts: opts, backend: backend}
}

func (c *CachedStore) ttlFor(instance Instance) time.Duration {
	if instance.IsCompleted {
		return c.opts.CompletedSagaCacheTTL
	}
	return c.opts.ActiveSagaCacheTTL
}

func (c *CachedStore) Load(ctx context.Context, sagaID string) (Instance, error) {
	if !c.opts.EnableCaching {
		return c.Store.Load(ctx, sagaID)
	}

	if cached, ok := c.backend.get(sagaID); ok {
		return cached, nil
	}

	inst, err := c.Store.Load(ctx, sagaID)
	if err != nil {
		return Instance{}, err
	}
	c.backend.set(sagaID, inst, c.ttlFor(inst))
	return inst, nil
}

func (c *CachedStore) Save(ctx context.Context, instance Instance) error {
	if err := c.Store.Save(ctx, instance); err != nil {
		return err
	}
	c.refreshOrInvalidate(instance)
	return nil
}

func (c *CachedStore) UpdateConditional(ctx context.Context, instance Instance, expectedVersion int64) error {
	if err := c.Store.UpdateConditional(ctx, instance, expectedVersion); err != nil {
		return err
	}
	c.refreshOrInvalidate(instance)
	return nil
}

func (c *CachedStore) refreshOrInvalidate(instance Instance) {
	if !c.opts.EnableCaching {
		return
	}
	if c.opts.InvalidateCacheOnUpdate {
		c.backend.invalidate(instance.SagaID)
		return
	}
	c.backend.set(instance.SagaID, instance, c.ttlFor(instance))
}
