package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock store ──────────────────────────────────────────────────────────────

type testStore struct {
	pingErr    error
	expired    atomic.Int64
	expireErrs chan error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return &models.Tenant{ID: uuid.New(), Name: "default"}, nil
}
func (s *testStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error { return nil }
func (s *testStore) GetAPIKeyByHash(_ context.Context, _ string) (*models.APIKey, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) GetAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.APIKey, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *testStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *testStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error      { return nil }
func (s *testStore) CountAPIKeys(_ context.Context) (int, error)                    { return 0, nil }
func (s *testStore) ExpireAPIKeys(_ context.Context, _ time.Time) (int64, error) {
	select {
	case err := <-s.expireErrs:
		return 0, err
	default:
	}
	s.expired.Add(1)
	return 1, nil
}
func (s *testStore) GetTier(_ context.Context, _ string) (*models.RateLimitTier, error) {
	return nil, store.ErrNotFound
}
func (s *testStore) ListTiers(_ context.Context) ([]*models.RateLimitTier, error) {
	return nil, nil
}

var _ store.Store = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *testCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *testCache) CheckAndIncr(_ context.Context, _ string, _ time.Duration) (int64, time.Duration, error) {
	return 1, time.Minute, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testStore{pingErr: errors.New("connection refused")}, &testCache{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testStore{}, &testCache{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_BothDegraded(t *testing.T) {
	h := healthHandler(
		&testStore{pingErr: errors.New("db down")},
		&testCache{pingErr: errors.New("redis down")},
	)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── sweeper tests ──────────────────────────────────────────────────────────

func TestSweepExpiredKeys_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &testStore{}

	done := make(chan struct{})
	go func() {
		sweepExpiredKeys(ctx, s, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
	assert.Greater(t, s.expired.Load(), int64(0))
}

func TestSweepExpiredKeys_SurvivesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	errs <- errors.New("db hiccup")
	s := &testStore{expireErrs: errs}

	done := make(chan struct{})
	go func() {
		sweepExpiredKeys(ctx, s, 10*time.Millisecond)
		close(done)
	}()

	// Wait for the sweeper to get past the injected error and sweep again.
	deadline := time.After(time.Second)
	for s.expired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never recovered from error")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "KEYWARD_SECRET_PEPPER",
	} {
		t.Setenv(key, "")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("KEYWARD_SECRET_PEPPER", "test-pepper-0123456789")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
