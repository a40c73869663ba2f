package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"folio/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the users table.
// The pool is owned by the caller and never closed here.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const userColumns = `id, email, email_norm, password_hash, display_name, role, created_at, updated_at`

// CreateUser inserts a new user. Duplicate emails surface ConflictError{Field: "email"}.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}

	id, err := ids.New(in.Now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Email:        in.Email,
		EmailNorm:    NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, u.ID, u.Email, u.EmailNorm, u.PasswordHash, u.DisplayName, string(u.Role), in.Now)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return u, nil
}

// GetUserByID loads a user by ULID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}
	return s.scanOne(ctx, op, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail loads a user by case-insensitive email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	return s.scanOne(ctx, op, `SELECT `+userColumns+` FROM users WHERE email_norm = $1`, norm)
}

func (s *PostgresStore) scanOne(ctx context.Context, op, query string, arg any) (User, error) {
	var (
		u    User
		role string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.EmailNorm,
		&u.PasswordHash,
		&u.DisplayName,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "", true
	}
}
