// Package handler contains the HTTP handlers for the keyward API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/keys"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
)

// KeyService defines the key-lifecycle interface the handlers depend on.
type KeyService interface {
	Issue(ctx context.Context, p keys.IssueParams) (*models.APIKey, string, error)
	Get(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.APIKey, error)
	ListByOwner(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// TierLister lists the configured rate-limit tiers.
type TierLister interface {
	ListTiers(ctx context.Context) ([]*models.RateLimitTier, error)
}

// createKeyResponse is the one place a plaintext secret ever leaves the
// service.
type createKeyResponse struct {
	*models.APIKey
	Secret string `json:"secret"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
func NewCreateKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			Name      string   `json:"name"`
			Tier      string   `json:"tier"`
			Scopes    []string `json:"scopes"`
			ExpiresAt string   `json:"expires_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if req.Tier == "" {
			req.Tier = "free"
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{"read"}
		}

		var expiresAt *time.Time
		if req.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, req.ExpiresAt)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"expires_at must be a valid RFC3339 timestamp", nil)
				return
			}
			expiresAt = &t
		}

		key, secret, err := svc.Issue(r.Context(), keys.IssueParams{
			TenantID:  tenantID,
			Name:      req.Name,
			Tier:      req.Tier,
			Scopes:    req.Scopes,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			switch {
			case errors.Is(err, keys.ErrUnknownTier):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"tier is not a known rate limit tier", nil)
			case errors.Is(err, keys.ErrExpiryInPast):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"expires_at must be in the future", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to create API key", nil)
			}
			return
		}

		response.Created(w, createKeyResponse{APIKey: key, Secret: secret})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		list, err := svc.ListByOwner(r.Context(), tenantID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list API keys", nil)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.Collection(w, list, response.PaginationMeta{
			Page:  1,
			Limit: len(list),
			Total: len(list),
		})
	}
}

// NewGetKeyHandler returns an http.HandlerFunc for GET /api/v1/admin/keys/{keyID}.
func NewGetKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keyID must be a UUID", nil)
			return
		}

		key, err := svc.Get(r.Context(), id, tenantID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to get API key", nil)
			return
		}
		response.JSON(w, key)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
// Revoking an already-revoked key succeeds.
func NewRevokeKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keyID must be a UUID", nil)
			return
		}

		err = svc.Revoke(r.Context(), id, tenantID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to revoke API key", nil)
			return
		}

		response.JSON(w, map[string]any{
			"id":     id,
			"status": models.StatusRevoked,
		})
	}
}

// NewListTiersHandler returns an http.HandlerFunc for GET /api/v1/admin/tiers.
func NewListTiersHandler(tiers TierLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := tiers.ListTiers(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list tiers", nil)
			return
		}
		response.JSON(w, list)
	}
}
