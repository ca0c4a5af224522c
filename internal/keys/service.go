// Package keys owns the API key lifecycle: issuance, resolution, revocation.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
	"golang.org/x/crypto/blake2b"
)

var ErrUnknownTier = errors.New("unknown rate limit tier")
var ErrExpiryInPast = errors.New("expiry must be in the future")
var ErrBadSecretFormat = errors.New("malformed secret")

const (
	// issueRetries bounds regeneration on a hash collision. With 256-bit
	// secrets a collision means crypto/rand is broken, but the insert must
	// still terminate.
	issueRetries = 3

	touchTimeout = 5 * time.Second
)

// IssueParams holds validated parameters for issuing a new key.
type IssueParams struct {
	TenantID  uuid.UUID
	Name      string
	Tier      string
	Scopes    []string
	ExpiresAt *time.Time
}

// Service implements key issuance, resolution and revocation over a Store.
type Service struct {
	store  store.Store
	pepper []byte
}

// NewService creates a new key Service. The pepper is mixed into every
// stored secret hash.
func NewService(s store.Store, pepper string) *Service {
	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Service{store: s, pepper: key}
}

// Issue creates a new active key and returns it together with the plaintext
// secret. The secret is not retrievable afterwards.
func (s *Service) Issue(ctx context.Context, p IssueParams) (*models.APIKey, string, error) {
	if _, err := s.store.GetTier(ctx, p.Tier); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownTier, p.Tier)
		}
		return nil, "", fmt.Errorf("validate tier: %w", err)
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(time.Now()) {
		return nil, "", ErrExpiryInPast
	}

	for attempt := 0; attempt < issueRetries; attempt++ {
		secret, err := GenerateSecret()
		if err != nil {
			return nil, "", err
		}
		hash, err := HashSecret(s.pepper, secret)
		if err != nil {
			return nil, "", err
		}

		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			TenantID:  p.TenantID,
			Name:      p.Name,
			KeyHash:   hash,
			KeyPrefix: DisplayPrefix(secret),
			Scopes:    p.Scopes,
			Tier:      p.Tier,
			Status:    models.StatusActive,
			ExpiresAt: p.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err = s.store.CreateAPIKey(ctx, key)
		if errors.Is(err, store.ErrDuplicateKey) {
			slog.Warn("secret hash collision, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return key, secret, nil
	}
	return nil, "", fmt.Errorf("issue key: gave up after %d hash collisions", issueRetries)
}

// Resolve looks up a key by its plaintext secret. Revoked, expired and
// unknown secrets all return store.ErrNotFound so callers cannot tell them
// apart; the distinction is logged here. Storage failures are returned as-is
// and must never be mistaken for a missing key.
func (s *Service) Resolve(ctx context.Context, secret string) (*models.APIKey, error) {
	if !ValidFormat(secret) {
		return nil, ErrBadSecretFormat
	}

	hash, err := HashSecret(s.pepper, secret)
	if err != nil {
		return nil, err
	}

	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !hashEqual(key.KeyHash, hash) {
		return nil, store.ErrNotFound
	}

	if !key.Usable(time.Now()) {
		slog.Debug("unusable api key presented",
			"key_id", key.ID, "key_prefix", key.KeyPrefix, "status", key.Status)
		return nil, store.ErrNotFound
	}
	return key, nil
}

// Revoke sets the key's status to revoked. Idempotent.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	return s.store.RevokeAPIKey(ctx, id, tenantID)
}

// Get returns one key's metadata.
func (s *Service) Get(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.APIKey, error) {
	return s.store.GetAPIKey(ctx, id, tenantID)
}

// ListByOwner returns all keys for a tenant. Hashes are excluded from JSON
// serialization by the model.
func (s *Service) ListByOwner(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	return s.store.ListAPIKeys(ctx, tenantID)
}

// TouchLastUsed records key usage without blocking the caller. Failures are
// logged and dropped; a slow or down database must not fail the request.
func (s *Service) TouchLastUsed(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			slog.Warn("update api key last used", "key_id", id, "error", err)
		}
	}()
}

// Bootstrap creates the first admin key from an operator-supplied secret so
// a fresh deployment can reach the admin surface. Fails if any key already
// exists.
func (s *Service) Bootstrap(ctx context.Context, tenantID uuid.UUID, secret string) (*models.APIKey, error) {
	if !ValidFormat(secret) {
		return nil, fmt.Errorf("bootstrap: %w (want %q prefix, %d-%d chars)",
			ErrBadSecretFormat, SecretPrefix, minSecretLen, maxSecretLen)
	}

	n, err := s.store.CountAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if n > 0 {
		return nil, nil
	}

	hash, err := HashSecret(s.pepper, secret)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      "bootstrap-admin",
		KeyHash:   hash,
		KeyPrefix: DisplayPrefix(secret),
		Scopes:    []string{"admin"},
		Tier:      "premium",
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return key, nil
}
