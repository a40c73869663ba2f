package identity

import (
	"context"
	"strings"
	"time"
)

// Role gates access to the admin back office.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the account a session is issued for.
type User struct {
	ID           string
	Email        string
	EmailNorm    string
	PasswordHash string
	DisplayName  string
	Role         Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateUserInput describes a new account. PasswordHash is already an encoded hash.
type CreateUserInput struct {
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
	Now          time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	// CreateUser returns ConflictError{Field: "email"} when the normalized email is taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

func prepareCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Email = strings.TrimSpace(in.Email)
	if !ValidEmail(in.Email) {
		return in, invalid(op, "invalid email")
	}
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		return in, invalid(op, "display name is required")
	}
	if in.PasswordHash == "" {
		return in, invalid(op, "password hash is required")
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		return in, invalid(op, "unknown role")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
