package idempotency

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/trigintafaces/excalibur-dispatch/internal/apperrors"
)

// RedisProvider persists processed (sagaID, key) tuples in Redis, for
// multi-instance coordinators that cannot share an in-process map. Entries
// expire after ttl (0 means no expiry) so the dedupe set does not grow
// unbounded across a long-lived cluster.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis creates a RedisProvider. ttl <= 0 disables expiry.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl, prefix: "dispatch:idem:"}
}

func (p *RedisProvider) redisKey(sagaID, key string) string {
	return p.prefix + tupleKey(sagaID, key)
}

func (p *RedisProvider) IsProcessed(ctx context.Context, sagaID, key string) (bool, error) {
	if err := validate(sagaID, key); err != nil {
		return false, err
	}

	n, err := p.client.Exists(ctx, p.redisKey(sagaID, key)).Result()
	if err != nil {
		return false, apperrors.Internal("idempotency redis exists failed", err)
	}
	return n > 0, nil
}

func (p *RedisProvider) MarkProcessed(ctx context.Context, sagaID, key string) error {
	if err := validate(sagaID, key); err != nil {
		return err
	}

	// SetNX makes the mark idempotent: a duplicate mark observes the key
	// already present and leaves its TTL untouched.
	_, err := p.client.SetNX(ctx, p.redisKey(sagaID, key), time.Now().UTC().Unix(), p.ttl).Result()
	if err != nil {
		return apperrors.Internal("idempotency redis setnx failed", err)
	}
	return nil
}
