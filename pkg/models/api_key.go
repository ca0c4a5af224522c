package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyStatus is the lifecycle state of an API key. Transitions are
// one-way: active -> revoked (operator action) or active -> expired
// (time-driven). Keys are never physically deleted.
type APIKeyStatus string

const (
	StatusActive  APIKeyStatus = "active"
	StatusRevoked APIKeyStatus = "revoked"
	StatusExpired APIKeyStatus = "expired"
)

// APIKey represents a bearer credential for API access.
// Raw secrets are shown once at creation; only a keyed hash is stored.
type APIKey struct {
	ID         uuid.UUID    `db:"id"           json:"id"`
	TenantID   uuid.UUID    `db:"tenant_id"    json:"tenant_id"`
	Name       string       `db:"name"         json:"name"`
	KeyHash    string       `db:"key_hash"     json:"-"`
	KeyPrefix  string       `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string     `db:"scopes"       json:"scopes"`
	Tier       string       `db:"tier"         json:"tier"`
	Status     APIKeyStatus `db:"status"       json:"status"`
	LastUsedAt *time.Time   `db:"last_used_at" json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time   `db:"expires_at"   json:"expires_at,omitempty"`
	CreatedAt  time.Time    `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"   json:"updated_at"`
}

// Usable reports whether the key can authorize requests at the given time.
// A key whose expiry has passed is unusable even before the sweeper has
// flipped its status.
func (k *APIKey) Usable(now time.Time) bool {
	if k.Status != StatusActive {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}
