package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	CheckAndIncr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// checkAndIncrScript atomically increments a window counter, starting the
// window (setting the expiry) on the first hit, and returns the new count
// together with the remaining window in milliseconds. Running it as one
// script guarantees two concurrent callers can never both observe the same
// count, which is what keeps the rate limit exact.
var checkAndIncrScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {count, ttl}
`)

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// CheckAndIncr increments the counter at key, starting a window of the given
// duration on first use. Returns the count after the increment and how long
// until the window resets.
func (c *RedisCache) CheckAndIncr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := checkAndIncrScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("check and incr: unexpected reply length %d", len(res))
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("check and incr: unexpected count type %T", res[0])
	}
	ttlMs, ok := res[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("check and incr: unexpected ttl type %T", res[1])
	}

	ttl := time.Duration(ttlMs) * time.Millisecond
	if ttlMs < 0 {
		// PTTL reports -1 if the expiry was lost; treat it as a fresh window.
		ttl = window
	}
	return count, ttl, nil
}
