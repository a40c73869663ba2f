package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the refresh_credentials table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed refresh credential store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrConfig)
	}
	return &PostgresStore{pool: pool}, nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const credentialColumns = `id, secret_hash, owner_id, issued_at, expires_at, revoked_at`

func (s *PostgresStore) Insert(ctx context.Context, c RefreshCredential) error {
	return insertCredential(ctx, s.pool, c)
}

func (s *PostgresStore) FindBySecretHash(ctx context.Context, hash string) (RefreshCredential, error) {
	return scanCredential(s.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM refresh_credentials
		WHERE secret_hash = $1
	`, hash))
}

func (s *PostgresStore) RevokeBySecretHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_credentials
		SET revoked_at = $2
		WHERE secret_hash = $1 AND revoked_at IS NULL
	`, hash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RevokeAllForOwner(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refresh_credentials
		SET revoked_at = $2
		WHERE owner_id = $1 AND revoked_at IS NULL
	`, ownerID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_credentials
		WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WithinTx runs fn inside a ReadCommitted transaction. Row locks taken through
// LockBySecretHash serialise concurrent rotations of the same secret.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) LockBySecretHash(ctx context.Context, hash string) (RefreshCredential, error) {
	return scanCredential(t.tx.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM refresh_credentials
		WHERE secret_hash = $1
		FOR UPDATE
	`, hash))
}

func (t pgTx) MarkRevoked(ctx context.Context, id string, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE refresh_credentials
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, id, now)
	return err
}

func (t pgTx) Insert(ctx context.Context, c RefreshCredential) error {
	return insertCredential(ctx, t.tx, c)
}

func insertCredential(ctx context.Context, q querier, c RefreshCredential) error {
	_, err := q.Exec(ctx, `
		INSERT INTO refresh_credentials (
			id, secret_hash, owner_id, issued_at, expires_at, revoked_at
		) VALUES ($1, $2, $3, $4, $5, NULL)
	`, c.ID, c.SecretHash, c.OwnerID, c.IssuedAt, c.ExpiresAt)
	if isSecretHashViolation(err) {
		return ErrConflict
	}
	return err
}

func scanCredential(row pgx.Row) (RefreshCredential, error) {
	var c RefreshCredential
	err := row.Scan(&c.ID, &c.SecretHash, &c.OwnerID, &c.IssuedAt, &c.ExpiresAt, &c.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshCredential{}, ErrCredentialNotFound
	}
	if err != nil {
		return RefreshCredential{}, err
	}
	return c, nil
}

func isSecretHashViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == "uq_refresh_credentials_secret_hash"
}
