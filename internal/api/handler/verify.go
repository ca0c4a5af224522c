package handler

import (
	"net/http"

	mw "github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
)

// NewVerifyHandler returns an http.HandlerFunc for GET /api/v1/verify.
// The heavy lifting (resolution, rate check, usage touch) already happened in
// the auth middleware; this endpoint just echoes the authorized identity so
// sibling services can delegate credential checks to keyward.
func NewVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}
		keyID, _ := mw.GetKeyID(r)
		keyPrefix, _ := mw.GetKeyPrefix(r)
		tier, _ := mw.GetTier(r)

		response.JSON(w, map[string]any{
			"key_id":     keyID,
			"key_prefix": keyPrefix,
			"tenant_id":  tenantID,
			"tier":       tier,
			"scopes":     mw.GetScopes(r),
		})
	}
}
