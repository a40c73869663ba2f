package session

import (
	"context"
	"time"
)

// RefreshCredential is one persisted refresh credential.
//
// Secret holds the plaintext only on the value returned at issuance; records read
// back from a Store carry SecretHash alone.
type RefreshCredential struct {
	ID         string
	Secret     string
	SecretHash string
	OwnerID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Valid reports whether the credential is unrevoked and unexpired at now.
func (c RefreshCredential) Valid(now time.Time) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt)
}

// Store abstracts refresh credential persistence.
//
// Rows are addressed by the digest of their secret; plaintext secrets never reach a Store.
type Store interface {
	// Insert persists c. A duplicate SecretHash returns ErrConflict.
	Insert(ctx context.Context, c RefreshCredential) error

	// FindBySecretHash returns ErrCredentialNotFound when no row matches.
	FindBySecretHash(ctx context.Context, hash string) (RefreshCredential, error)

	// RevokeBySecretHash sets revoked_at if unset. It reports whether a row was changed.
	RevokeBySecretHash(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeAllForOwner revokes every unrevoked credential of ownerID.
	RevokeAllForOwner(ctx context.Context, ownerID string, now time.Time) (int64, error)

	// DeleteExpired hard-deletes rows with expires_at < before, revoked or not.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// WithinTx runs fn in one unit of work. It commits when fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of a Store inside WithinTx.
type Tx interface {
	// LockBySecretHash loads and locks a row until the unit of work ends.
	LockBySecretHash(ctx context.Context, hash string) (RefreshCredential, error)

	// MarkRevoked sets revoked_at on the row with the given id if unset.
	MarkRevoked(ctx context.Context, id string, now time.Time) error

	Insert(ctx context.Context, c RefreshCredential) error
}
