package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	GetAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CountAPIKeys(ctx context.Context) (int, error)
	ExpireAPIKeys(ctx context.Context, now time.Time) (int64, error)

	GetTier(ctx context.Context, name string) (*models.RateLimitTier, error)
	ListTiers(ctx context.Context) ([]*models.RateLimitTier, error)
}
