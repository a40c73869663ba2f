package identity

import (
	"context"
	"strings"
	"sync"

	"folio/cmd/identity/ids"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.EmailNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[u.ID] = u
	s.byEmail[u.EmailNorm] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "missing id")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[norm]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return s.byID[id], nil
}

// Delete removes a user; sessions issued to it then fail identity lookups.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byID[id]; ok {
		delete(s.byEmail, u.EmailNorm)
		delete(s.byID, id)
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
