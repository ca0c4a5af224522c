package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/pkg/models"
)

// MemoryLimiter implements Limiter with in-process windows. State is lost on
// restart and not shared between replicas; use RedisLimiter for deployments
// with more than one server process.
type MemoryLimiter struct {
	counters sync.Map // uuid.UUID -> *windowCounter
	now      func() time.Time
}

// windowCounter tracks one key's current window. Each counter has its own
// mutex so contention on one key never blocks checks for another.
type windowCounter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// NewMemoryLimiter creates a new MemoryLimiter.
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow charges one request against the key's current window. The window is
// created lazily on the first request and rolls over once its duration has
// fully elapsed.
func (l *MemoryLimiter) Allow(_ context.Context, keyID uuid.UUID, tier *models.RateLimitTier) (*Decision, error) {
	value, _ := l.counters.LoadOrStore(keyID, &windowCounter{})
	wc := value.(*windowCounter)

	wc.mu.Lock()
	defer wc.mu.Unlock()

	now := l.now()
	if wc.windowStart.IsZero() || now.Sub(wc.windowStart) >= tier.Window() {
		wc.windowStart = now
		wc.count = 0
	}

	limit := tier.RequestsPerWindow
	allowed := wc.count < limit
	if allowed {
		wc.count++
	}

	remaining := limit - wc.count
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := wc.windowStart.Add(tier.Window()).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	d := &Decision{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !allowed {
		d.RetryAfter = resetAfter
	}
	return d, nil
}
