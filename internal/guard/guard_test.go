package guard_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/guard"
	"github.com/keyward/keyward/internal/ratelimit"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "kw_" + "abcdefghijklmnopqrstuvwxyz234567abcdefghijklmnopqr"

// --- mocks ---

type mockResolver struct {
	key     *models.APIKey
	err     error
	touched chan uuid.UUID
}

func (m *mockResolver) Resolve(_ context.Context, _ string) (*models.APIKey, error) {
	return m.key, m.err
}

func (m *mockResolver) TouchLastUsed(id uuid.UUID) {
	if m.touched != nil {
		m.touched <- id
	}
}

type mockTiers struct {
	tier *models.RateLimitTier
	err  error
}

func (m *mockTiers) GetTier(_ context.Context, _ string) (*models.RateLimitTier, error) {
	return m.tier, m.err
}

type mockLimiter struct {
	decision *ratelimit.Decision
	err      error
}

func (m *mockLimiter) Allow(_ context.Context, _ uuid.UUID, _ *models.RateLimitTier) (*ratelimit.Decision, error) {
	return m.decision, m.err
}

func activeKey() *models.APIKey {
	return &models.APIKey{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "test-key",
		Tier:     "free",
		Scopes:   []string{"read"},
		Status:   models.StatusActive,
	}
}

func freeTier() *models.RateLimitTier {
	return &models.RateLimitTier{Name: "free", RequestsPerWindow: 60, WindowSeconds: 60}
}

func allowedDecision() *ratelimit.Decision {
	return &ratelimit.Decision{Allowed: true, Limit: 60, Remaining: 59, ResetAfter: time.Minute}
}

// --- tests ---

func TestAuthorize_MalformedCredential(t *testing.T) {
	g := guard.New(&mockResolver{}, &mockTiers{}, &mockLimiter{})

	_, err := g.Authorize(context.Background(), "Basic abc123")
	require.ErrorIs(t, err, guard.ErrInvalidFormat)
}

func TestAuthorize_UnknownKey(t *testing.T) {
	g := guard.New(
		&mockResolver{err: store.ErrNotFound},
		&mockTiers{tier: freeTier()},
		&mockLimiter{decision: allowedDecision()},
	)

	_, err := g.Authorize(context.Background(), validSecret)
	require.ErrorIs(t, err, guard.ErrUnauthorized)
}

func TestAuthorize_StoreDownIsNotUnauthorized(t *testing.T) {
	g := guard.New(
		&mockResolver{err: errors.New("connection refused")},
		&mockTiers{tier: freeTier()},
		&mockLimiter{decision: allowedDecision()},
	)

	_, err := g.Authorize(context.Background(), validSecret)
	require.ErrorIs(t, err, guard.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, guard.ErrUnauthorized)
}

func TestAuthorize_UnknownTierFailsClosed(t *testing.T) {
	g := guard.New(
		&mockResolver{key: activeKey()},
		&mockTiers{err: store.ErrNotFound},
		&mockLimiter{decision: allowedDecision()},
	)

	_, err := g.Authorize(context.Background(), validSecret)
	require.ErrorIs(t, err, guard.ErrUnauthorized)
}

func TestAuthorize_LimiterDownIsStorageUnavailable(t *testing.T) {
	g := guard.New(
		&mockResolver{key: activeKey()},
		&mockTiers{tier: freeTier()},
		&mockLimiter{err: errors.New("redis timeout")},
	)

	_, err := g.Authorize(context.Background(), validSecret)
	require.ErrorIs(t, err, guard.ErrStorageUnavailable)
}

func TestAuthorize_RateLimited(t *testing.T) {
	denied := &ratelimit.Decision{
		Allowed:    false,
		Limit:      60,
		Remaining:  0,
		ResetAfter: 42 * time.Second,
		RetryAfter: 42 * time.Second,
	}
	g := guard.New(
		&mockResolver{key: activeKey()},
		&mockTiers{tier: freeTier()},
		&mockLimiter{decision: denied},
	)

	_, err := g.Authorize(context.Background(), validSecret)
	require.Error(t, err)

	var rle *guard.RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 42*time.Second, rle.Decision.RetryAfter)
	assert.Equal(t, 60, rle.Decision.Limit)
}

func TestAuthorize_Success(t *testing.T) {
	key := activeKey()
	touched := make(chan uuid.UUID, 1)
	g := guard.New(
		&mockResolver{key: key, touched: touched},
		&mockTiers{tier: freeTier()},
		&mockLimiter{decision: allowedDecision()},
	)

	res, err := g.Authorize(context.Background(), validSecret)
	require.NoError(t, err)

	assert.Equal(t, key.ID, res.Key.ID)
	assert.Equal(t, key.TenantID, res.Key.TenantID)
	assert.True(t, res.Decision.Allowed)

	select {
	case id := <-touched:
		assert.Equal(t, key.ID, id)
	case <-time.After(time.Second):
		t.Fatal("last-used touch never happened")
	}
}

func TestAuthorize_ErrorNeverEchoesCredential(t *testing.T) {
	g := guard.New(
		&mockResolver{err: errors.New("connection refused")},
		&mockTiers{tier: freeTier()},
		&mockLimiter{decision: allowedDecision()},
	)

	_, err := g.Authorize(context.Background(), validSecret)
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), validSecret))
}
