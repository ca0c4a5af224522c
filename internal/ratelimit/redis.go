package ratelimit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/pkg/models"
)

// RedisLimiter implements Limiter on top of the cache's atomic
// check-and-increment. Windows live in Redis, so limits are shared across
// replicas and survive process restarts.
type RedisLimiter struct {
	cache cache.Cache
}

// NewRedisLimiter creates a new RedisLimiter.
func NewRedisLimiter(c cache.Cache) *RedisLimiter {
	return &RedisLimiter{cache: c}
}

// Allow charges one request against the key's current window. Errors are
// returned as-is; the caller decides whether to fail open or closed.
func (l *RedisLimiter) Allow(ctx context.Context, keyID uuid.UUID, tier *models.RateLimitTier) (*Decision, error) {
	count, ttl, err := l.cache.CheckAndIncr(ctx, cache.UsageWindowKey(keyID), tier.Window())
	if err != nil {
		return nil, fmt.Errorf("rate limit window for %s: %w", keyID, err)
	}

	limit := tier.RequestsPerWindow
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := &Decision{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: ttl,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}
