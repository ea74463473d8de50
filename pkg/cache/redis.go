package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is the networked backend for multi-instance deployments.
// Store failures are logged and reported as misses so callers always fall
// through to the source of truth.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis get failed, treating as miss",
				zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) int {
	removed := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return removed
}

func (c *RedisCache) GetMulti(ctx context.Context, keys []string) map[string][]byte {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("redis mget failed, treating as misses", zap.Error(err))
		c.misses.Add(uint64(len(keys)))
		return result
	}
	for i, value := range values {
		if value == nil {
			c.misses.Add(1)
			continue
		}
		if s, ok := value.(string); ok {
			result[keys[i]] = []byte(s)
			c.hits.Add(1)
		}
	}
	return result
}

func (c *RedisCache) SetMulti(ctx context.Context, entries map[string][]byte, ttl time.Duration) {
	pipe := c.client.Pipeline()
	for key, value := range entries {
		pipe.Set(ctx, key, value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("redis pipeline set failed", zap.Error(err))
	}
}

func (c *RedisCache) Keys(ctx context.Context, pattern string) []string {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis scan failed", zap.String("pattern", pattern), zap.Error(err))
	}
	return keys
}

func (c *RedisCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
