package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	u, err := s.CreateUser(ctx, CreateUserInput{
		Email:        "  Ann@Example.com ",
		DisplayName:  "Ann",
		PasswordHash: "$argon2id$stub",
		Now:          now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "Ann@Example.com" || u.EmailNorm != "ann@example.com" {
		t.Fatalf("unexpected email fields: %q %q", u.Email, u.EmailNorm)
	}
	if u.Role != RoleUser {
		t.Fatalf("expected default role USER, got %q", u.Role)
	}
	if !u.CreatedAt.Equal(now) {
		t.Fatalf("created_at mismatch: %v", u.CreatedAt)
	}

	byEmail, err := s.GetUserByEmail(ctx, "ANN@example.COM")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Fatalf("lookup by email returned %q, want %q", byEmail.ID, u.ID)
	}

	byID, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != u.Email {
		t.Fatalf("lookup by id mismatch")
	}
}

func TestMemoryStore_ConflictEmail_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	in := CreateUserInput{Email: "a@x.com", DisplayName: "A", PasswordHash: "h"}
	if _, err := s.CreateUser(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}

	in.Email = "A@X.COM"
	_, err := s.CreateUser(ctx, in)
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var ce ConflictError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("expected email field, got %q", ce.Field)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	cases := []struct {
		name string
		in   CreateUserInput
	}{
		{name: "bad email", in: CreateUserInput{Email: "nope", DisplayName: "A", PasswordHash: "h"}},
		{name: "display name form", in: CreateUserInput{Email: "Ann <a@x.com>", DisplayName: "A", PasswordHash: "h"}},
		{name: "no name", in: CreateUserInput{Email: "a@x.com", DisplayName: " ", PasswordHash: "h"}},
		{name: "no hash", in: CreateUserInput{Email: "a@x.com", DisplayName: "A"}},
		{name: "bad role", in: CreateUserInput{Email: "a@x.com", DisplayName: "A", PasswordHash: "h", Role: "ROOT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.CreateUser(ctx, tc.in); !IsInvalidInput(err) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestMemoryStore_NotFoundAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetUserByID(ctx, "01J00000000000000000000000"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "b@x.com", DisplayName: "B", PasswordHash: "h", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	s.Delete(u.ID)

	if _, err := s.GetUserByID(ctx, u.ID); !IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "b@x.com"); !IsNotFound(err) {
		t.Fatalf("expected email index cleared, got %v", err)
	}
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"a@x.com":           true,
		"first.last@ex.org": true,
		"":                  false,
		"a@":                false,
		"Ann <a@x.com>":     false,
		"no-at-sign":        false,
	}
	for in, want := range cases {
		if got := ValidEmail(in); got != want {
			t.Fatalf("ValidEmail(%q)=%v want=%v", in, got, want)
		}
	}
}
