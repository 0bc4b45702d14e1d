package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// DefaultKeyPrefix namespaces cache keys in a shared Redis instance.
const DefaultKeyPrefix = "paged"

// Redis is a Store backed by a Redis instance. Values are JSON-encoded
// and expiry is delegated to Redis key TTLs. Single-flight population
// is process-local: two processes sharing one Redis may still each
// invoke the factory once for the same key.
//
// Backend errors on reads degrade to a miss and on writes are dropped,
// so a flaky Redis slows requests down but never fails them.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedis creates a Redis-backed store.
func NewRedis[V any](client *redis.Client, prefix string) *Redis[V] {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis[V]{
		client: client,
		prefix: prefix,
	}
}

// GetOrAdd implements Store.
func (r *Redis[V]) GetOrAdd(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := r.lookup(ctx, key); ok {
		CacheHits.WithLabelValues("redis").Inc()
		return v, nil
	}
	CacheMisses.Inc()

	ch := r.group.DoChan(key, func() (any, error) {
		if v, ok := r.lookup(ctx, key); ok {
			return v, nil
		}

		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(v); err != nil {
			CacheErrors.WithLabelValues("set").Inc()
		} else if err := r.client.Set(ctx, r.redisKey(key), data, ttl).Err(); err != nil {
			CacheErrors.WithLabelValues("set").Inc()
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		if res.Shared {
			SharedResults.Inc()
		}
		return res.Val.(V), nil
	}
}

func (r *Redis[V]) lookup(ctx context.Context, key string) (V, bool) {
	var zero V

	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			CacheErrors.WithLabelValues("get").Inc()
		}
		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		// Corrupt entry: drop it and refetch.
		CacheErrors.WithLabelValues("get").Inc()
		_ = r.client.Del(ctx, r.redisKey(key)).Err()
		return zero, false
	}
	return v, true
}

// Delete removes the entry for key, if any.
func (r *Redis[V]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return err
	}
	return nil
}

func (r *Redis[V]) redisKey(key string) string {
	return r.prefix + ":" + key
}
