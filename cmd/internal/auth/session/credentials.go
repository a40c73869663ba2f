package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"folio/cmd/identity/ids"
	"folio/cmd/security/token"
)

// maxSecretLen bounds presented secrets before hashing.
const maxSecretLen = 512

// Credentials is the secret-level API over a Store: callers deal in plaintext
// secrets, the Store only ever sees their digests.
type Credentials struct {
	store       Store
	hasher      token.Hasher
	secretBytes int
}

// NewCredentials wraps store. secretBytes is the entropy of generated secrets.
func NewCredentials(store Store, hasher token.Hasher, secretBytes int) (*Credentials, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	}
	if secretBytes < 32 {
		return nil, fmt.Errorf("%w: refresh secrets need at least 32 bytes of entropy", ErrConfig)
	}
	return &Credentials{store: store, hasher: hasher, secretBytes: secretBytes}, nil
}

// Store returns the backing store.
func (c *Credentials) Store() Store { return c.store }

// Create issues and persists a fresh credential for ownerID.
// A secret collision returns ErrConflict; callers may retry.
func (c *Credentials) Create(ctx context.Context, ownerID string, issuedAt, expiresAt time.Time) (RefreshCredential, error) {
	cred, err := c.build(ownerID, issuedAt, expiresAt)
	if err != nil {
		return RefreshCredential{}, err
	}
	if err := c.store.Insert(ctx, cred); err != nil {
		return RefreshCredential{}, err
	}
	return cred, nil
}

// FindValid returns the credential for secret, or nil when it is unknown, revoked or expired.
func (c *Credentials) FindValid(ctx context.Context, secret string, now time.Time) (*RefreshCredential, error) {
	hash, ok := c.digest(secret)
	if !ok {
		return nil, nil
	}
	cred, err := c.store.FindBySecretHash(ctx, hash)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !cred.Valid(now) {
		return nil, nil
	}
	return &cred, nil
}

// Revoke sets revoked_at on the credential for secret if unset.
// Unknown or already revoked secrets are not an error.
func (c *Credentials) Revoke(ctx context.Context, secret string, now time.Time) (bool, error) {
	hash, ok := c.digest(secret)
	if !ok {
		return false, nil
	}
	return c.store.RevokeBySecretHash(ctx, hash, now)
}

// RevokeAllForOwner revokes every unrevoked credential of ownerID.
func (c *Credentials) RevokeAllForOwner(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	return c.store.RevokeAllForOwner(ctx, ownerID, now)
}

// DeleteExpired removes credentials with expiresAt < before, revoked or not.
func (c *Credentials) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return c.store.DeleteExpired(ctx, before)
}

func (c *Credentials) build(ownerID string, issuedAt, expiresAt time.Time) (RefreshCredential, error) {
	if ownerID == "" {
		return RefreshCredential{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if !expiresAt.After(issuedAt) {
		return RefreshCredential{}, fmt.Errorf("%w: expiry must follow issuance", ErrInvalidInput)
	}

	secret, err := token.NewOpaque(c.secretBytes)
	if err != nil {
		return RefreshCredential{}, err
	}
	id, err := ids.New(issuedAt)
	if err != nil {
		return RefreshCredential{}, err
	}

	return RefreshCredential{
		ID:         id,
		Secret:     secret,
		SecretHash: c.hasher.Hash(secret),
		OwnerID:    ownerID,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

func (c *Credentials) digest(secret string) (string, bool) {
	if secret == "" || len(secret) > maxSecretLen {
		return "", false
	}
	return c.hasher.Hash(secret), true
}
