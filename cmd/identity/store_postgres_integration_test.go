package identity_test

import (
	"context"
	"testing"
	"time"

	"folio/cmd/identity"
	"folio/cmd/internal/pgtest"
)

func TestPostgresStore_CreateAndLookup(t *testing.T) {
	pool := pgtest.Open(t)
	ctx := context.Background()

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	u, err := store.CreateUser(ctx, identity.CreateUserInput{
		Email:        "Ann@Example.com",
		DisplayName:  "Ann",
		PasswordHash: "$argon2id$stub",
		Role:         identity.RoleAdmin,
		Now:          now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "ann@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID || got.Role != identity.RoleAdmin || got.DisplayName != "Ann" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("created_at mismatch: %v vs %v", got.CreatedAt, now)
	}

	byID, err := store.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != "Ann@Example.com" {
		t.Fatalf("email mismatch: %q", byID.Email)
	}
}

func TestPostgresStore_ConflictEmail_CaseInsensitive(t *testing.T) {
	pool := pgtest.Open(t)
	ctx := context.Background()

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	in := identity.CreateUserInput{Email: "a@x.com", DisplayName: "A", PasswordHash: "h"}
	if _, err := store.CreateUser(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	in.Email = "A@X.com"
	if _, err := store.CreateUser(ctx, in); !identity.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	pool := pgtest.Open(t)
	ctx := context.Background()

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if _, err := store.GetUserByID(ctx, "01J00000000000000000000000"); !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "ghost@x.com"); !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
