package sagastate

import (
	"time"

	"github.com/trigintafaces/excalibur-dispatch/internal/platform/cache"
)

// LocalCache is the in-process cacheBackend, built on the shared generic
// cache engine (internal/platform/cache).
type LocalCache struct {
	cache *cache.Cache
}

// NewLocalCache creates a LocalCache sized per cfg.
func NewLocalCache(cfg cache.CacheConfig) *LocalCache {
	return &LocalCache{cache: cache.NewCache(cfg)}
}

func (l *LocalCache) get(sagaID string) (Instance, bool) {
	v, ok := l.cache.Get(sagaID)
	if !ok {
		return Instance{}, false
	}
	inst, ok := v.(Instance)
	return inst, ok
}

func (l *LocalCache) set(sagaID string, instance Instance, ttl time.Duration) {
	l.cache.Set(sagaID, instance, ttl)
}

func (l *LocalCache) invalidate(sagaID string) {
	l.cache.Invalidate(sagaID)
}
