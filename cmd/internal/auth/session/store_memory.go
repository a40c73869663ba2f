package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development without a database and for tests.
//
// WithinTx holds the store mutex for the whole unit of work, so transactions are
// fully serialised. Writes made through Tx are staged and applied only on commit.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]RefreshCredential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]RefreshCredential)}
}

func (s *MemoryStore) Insert(ctx context.Context, c RefreshCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(c)
}

func (s *MemoryStore) insertLocked(c RefreshCredential) error {
	if _, ok := s.byHash[c.SecretHash]; ok {
		return ErrConflict
	}
	c.Secret = ""
	s.byHash[c.SecretHash] = c
	return nil
}

func (s *MemoryStore) FindBySecretHash(ctx context.Context, hash string) (RefreshCredential, error) {
	if err := ctx.Err(); err != nil {
		return RefreshCredential{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byHash[hash]
	if !ok {
		return RefreshCredential{}, ErrCredentialNotFound
	}
	return c, nil
}

func (s *MemoryStore) RevokeBySecretHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byHash[hash]
	if !ok || c.RevokedAt != nil {
		return false, nil
	}
	c.RevokedAt = &now
	s.byHash[hash] = c
	return true, nil
}

func (s *MemoryStore) RevokeAllForOwner(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, c := range s.byHash {
		if c.OwnerID != ownerID || c.RevokedAt != nil {
			continue
		}
		at := now
		c.RevokedAt = &at
		s.byHash[h] = c
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, c := range s.byHash {
		if c.ExpiresAt.Before(before) {
			delete(s.byHash, h)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, revoked: make(map[string]time.Time)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commitLocked()
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

type memTx struct {
	store    *MemoryStore
	revoked  map[string]time.Time
	inserted []RefreshCredential
}

func (t *memTx) LockBySecretHash(ctx context.Context, hash string) (RefreshCredential, error) {
	if err := ctx.Err(); err != nil {
		return RefreshCredential{}, err
	}
	c, ok := t.store.byHash[hash]
	if !ok {
		for _, in := range t.inserted {
			if in.SecretHash == hash {
				return in, nil
			}
		}
		return RefreshCredential{}, ErrCredentialNotFound
	}
	if at, ok := t.revoked[c.ID]; ok && c.RevokedAt == nil {
		c.RevokedAt = &at
	}
	return c, nil
}

func (t *memTx) MarkRevoked(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.revoked[id]; !ok {
		t.revoked[id] = now
	}
	return nil
}

func (t *memTx) Insert(ctx context.Context, c RefreshCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.store.byHash[c.SecretHash]; ok {
		return ErrConflict
	}
	for _, in := range t.inserted {
		if in.SecretHash == c.SecretHash {
			return ErrConflict
		}
	}
	c.Secret = ""
	t.inserted = append(t.inserted, c)
	return nil
}

func (t *memTx) commitLocked() error {
	for h, c := range t.store.byHash {
		at, ok := t.revoked[c.ID]
		if !ok || c.RevokedAt != nil {
			continue
		}
		c.RevokedAt = &at
		t.store.byHash[h] = c
	}
	for _, c := range t.inserted {
		if err := t.store.insertLocked(c); err != nil {
			return err
		}
	}
	return nil
}
