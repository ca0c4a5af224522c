// Package guard turns a raw credential into an allow/deny decision.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/keys"
	"github.com/keyward/keyward/internal/ratelimit"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
)

var (
	// ErrInvalidFormat means the credential is not shaped like a keyward
	// secret. No state changed.
	ErrInvalidFormat = errors.New("malformed credential")

	// ErrUnauthorized covers unknown, revoked and expired keys alike, so
	// responses leak nothing about which secrets exist.
	ErrUnauthorized = errors.New("unknown or inactive credential")

	// ErrStorageUnavailable means the backing store could not answer. It is
	// deliberately distinct from ErrUnauthorized: "service down" must never
	// read as "credential bad".
	ErrStorageUnavailable = errors.New("credential storage unavailable")
)

// RateLimitedError is returned when the key's quota for the current window
// is exhausted. The increment that detected this is not rolled back: quota
// charges attempted requests.
type RateLimitedError struct {
	Decision *ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded, retry in %s",
		e.Decision.Limit, e.Decision.RetryAfter)
}

// KeyResolver is the slice of the key service the guard needs.
type KeyResolver interface {
	Resolve(ctx context.Context, secret string) (*models.APIKey, error)
	TouchLastUsed(id uuid.UUID)
}

// TierSource resolves a tier name to its policy.
type TierSource interface {
	GetTier(ctx context.Context, name string) (*models.RateLimitTier, error)
}

// Result is a successful authorization.
type Result struct {
	Key      *models.APIKey
	Decision *ratelimit.Decision
}

// Guard validates credentials against the key store and the rate limiter.
type Guard struct {
	keys    KeyResolver
	tiers   TierSource
	limiter ratelimit.Limiter
}

// New creates a new Guard.
func New(k KeyResolver, t TierSource, l ratelimit.Limiter) *Guard {
	return &Guard{keys: k, tiers: t, limiter: l}
}

// Authorize runs the per-request pipeline: format check, key resolution,
// rate check, async last-used touch. Every rejection is one of the typed
// errors above; the plaintext credential is never logged.
func (g *Guard) Authorize(ctx context.Context, credential string) (*Result, error) {
	if !keys.ValidFormat(credential) {
		return nil, ErrInvalidFormat
	}

	key, err := g.keys.Resolve(ctx, credential)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, keys.ErrBadSecretFormat) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	tier, err := g.tiers.GetTier(ctx, key.Tier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A key pointing at a deleted tier fails closed.
			slog.Error("api key references unknown tier",
				"key_id", key.ID, "tier", key.Tier)
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	decision, err := g.limiter.Allow(ctx, key.ID, tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !decision.Allowed {
		slog.Info("api key rate limited",
			"key_id", key.ID, "tier", tier.Name, "retry_after", decision.RetryAfter)
		return nil, &RateLimitedError{Decision: decision}
	}

	g.keys.TouchLastUsed(key.ID)

	return &Result{Key: key, Decision: decision}, nil
}
