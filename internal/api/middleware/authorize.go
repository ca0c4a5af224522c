package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/guard"
)

// Authorizer is the guard interface the middleware depends on.
type Authorizer interface {
	Authorize(ctx context.Context, credential string) (*guard.Result, error)
}

// Auth provides authentication, rate limiting and scope-checking middleware.
type Auth struct {
	guard Authorizer
}

// NewAuth creates a new Auth middleware.
func NewAuth(g Authorizer) *Auth {
	return &Auth{guard: g}
}

// Authenticate validates the Bearer token through the guard and sets
// tenant_id, key_id, key_prefix, tier and scopes in the request context.
// Rate-limit headers are set on every response that reached the limiter.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		res, err := a.guard.Authorize(r.Context(), rawKey)
		if err != nil {
			writeGuardError(w, err)
			return
		}

		setRateLimitHeaders(w, res.Decision.Limit, res.Decision.Remaining, res.Decision.ResetAfter)

		ctx := r.Context()
		ctx = SetTenantID(ctx, res.Key.TenantID)
		ctx = setKeyID(ctx, res.Key.ID)
		ctx = setKeyPrefix(ctx, res.Key.KeyPrefix)
		ctx = setTier(ctx, res.Key.Tier)
		ctx = setScopes(ctx, res.Key.Scopes)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, s := range GetScopes(r) {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func writeGuardError(w http.ResponseWriter, err error) {
	var rle *guard.RateLimitedError
	switch {
	case errors.As(err, &rle):
		d := rle.Decision
		setRateLimitHeaders(w, d.Limit, d.Remaining, d.ResetAfter)
		w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(d.RetryAfter)))
		response.Error(w, http.StatusTooManyRequests,
			"RATE_LIMIT_EXCEEDED", "Too many requests", map[string]any{
				"retry_after_seconds": ceilSeconds(d.RetryAfter),
			})
	case errors.Is(err, guard.ErrInvalidFormat), errors.Is(err, guard.ErrUnauthorized):
		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key", nil)
	case errors.Is(err, guard.ErrStorageUnavailable):
		response.Error(w, http.StatusServiceUnavailable,
			"STORAGE_UNAVAILABLE", "Credential storage is unavailable", nil)
	default:
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to validate API key", nil)
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAfter time.Duration) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset",
		strconv.FormatInt(time.Now().Add(resetAfter).Unix(), 10))
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
