package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache is the read-through cache consumed by the services. It is never
// authoritative: implementations log failures and the callers treat every
// error as a miss.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

type RedisCache struct {
	RDB *redis.Client
	Log zerolog.Logger
}

func NewCache(rdb *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{RDB: rdb, Log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		c.Log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return nil, err
	}
	return b, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.RDB.Set(ctx, key, value, ttl).Err(); err != nil {
		c.Log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return err
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.RDB.Del(ctx, keys...).Err(); err != nil {
		c.Log.Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
		return err
	}
	return nil
}

// DeletePattern evicts every key matching pattern. Used for list views where
// the exact key set is not known (e.g. product:list:*).
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.RDB.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.Log.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
		return err
	}
	return c.Delete(ctx, keys...)
}

// GetOrSet is the cache-aside read path: consult the cache, on a miss run
// fetch and store the result with the given TTL. Cache failures of any kind
// fall through to fetch; the store stays the availability source of truth.
func GetOrSet[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	if b, err := c.Get(ctx, key); err == nil && b != nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		// stale or corrupt entry, fall through to fetch
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}

	if b, err := json.Marshal(v); err == nil {
		_ = c.Set(ctx, key, b, ttl)
	}
	return v, nil
}
