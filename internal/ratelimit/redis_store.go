package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ThePickle31/clawd-site-sub000/internal/model"
	"github.com/go-redis/redis/v8"
)

// hitScript runs the fixed-window step inside Redis so concurrent callers
// are serialised. Returns {count, window_start_ms, allowed}.
var hitScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local start = tonumber(redis.call('HGET', KEYS[1], 'window_start') or '0')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
if count == 0 or now - start >= window then
	redis.call('HSET', KEYS[1], 'count', 1, 'window_start', now)
	redis.call('PEXPIREAT', KEYS[1], now + window)
	return {1, now, 1}
end
if count >= max then
	return {count, start, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, start, 1}
`)

// RedisStore keeps each counter in a hash that expires with its window, so
// idle keys are swept by Redis itself.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a RedisStore. One store can back several limiters.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, max int, window time.Duration) (*model.RateLimitRecord, bool, error) {
	vals, err := hitScript.Run(ctx, s.rdb, []string{key}, now.UnixMilli(), window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return nil, false, err
	}
	if len(vals) != 3 {
		return nil, false, fmt.Errorf("unexpected script reply %v", vals)
	}
	rec := &model.RateLimitRecord{Key: key, Count: int(vals[0]), WindowStart: time.UnixMilli(vals[1])}
	return rec, vals[2] == 1, nil
}
