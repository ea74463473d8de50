package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// tryAcquireScript implements the sliding window atomically on the Redis
// side: prune, count, conditionally add. KEYS[1] is the window zset;
// ARGV = now-micros, window-micros, limit, member.
var tryAcquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1] - ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], math.ceil(ARGV[2] / 1000))
  count = count + 1
  allowed = 1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldestScore = 0
if oldest[2] then oldestScore = oldest[2] end
return {count, allowed, oldestScore}
`)

// windowMember gives every admitted event a distinct zset member. Two
// acquires landing on the same microsecond would otherwise collapse into one
// member and consume a single slot; the score still orders events by time.
func windowMember(now time.Time) string {
	return fmt.Sprintf("%d:%s", now.UnixMicro(), uuid.NewString())
}

// RedisCounterStore shares sliding windows across instances, giving true
// cluster-wide quotas without dividing limits per instance.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client, prefix: "ratelimit"}
}

func (s *RedisCounterStore) windowKey(identifier string) string {
	return fmt.Sprintf("%s:win:%s", s.prefix, identifier)
}

func (s *RedisCounterStore) blockKey(identifier string) string {
	return fmt.Sprintf("%s:blk:%s", s.prefix, identifier)
}

func (s *RedisCounterStore) TryAcquire(ctx context.Context, identifier string, window time.Duration, limit int) (int, time.Time, bool, error) {
	now := time.Now()
	values, err := tryAcquireScript.Run(ctx, s.client,
		[]string{s.windowKey(identifier)},
		now.UnixMicro(), window.Microseconds(), limit, windowMember(now),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(values) != 3 {
		return 0, time.Time{}, false, fmt.Errorf("rate limit script returned %d values", len(values))
	}

	count := int(values[0])
	allowed := values[1] == 1
	var oldest time.Time
	if values[2] > 0 {
		oldest = time.UnixMicro(values[2])
	}
	return count, oldest, allowed, nil
}

func (s *RedisCounterStore) Block(ctx context.Context, identifier string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.blockKey(identifier), until.UnixMicro(), ttl).Err()
}

func (s *RedisCounterStore) BlockedUntil(ctx context.Context, identifier string) (time.Time, error) {
	micros, err := s.client.Get(ctx, s.blockKey(identifier)).Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(micros), nil
}
