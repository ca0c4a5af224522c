// Package ratelimit enforces per-key request quotas over fixed time windows.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/pkg/models"
)

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	// RetryAfter is how long the caller should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a key may make one more request under its tier.
// The check and the increment are a single atomic unit: with limit L, 2xL
// concurrent calls for the same key yield exactly L allowed decisions.
type Limiter interface {
	Allow(ctx context.Context, keyID uuid.UUID, tier *models.RateLimitTier) (*Decision, error)
}
