package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"folio/cmd/identity"
	"folio/cmd/internal/auth/session"
	"folio/cmd/internal/pgtest"
	"folio/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresService(t *testing.T) (*session.Service, *session.PostgresStore) {
	t.Helper()
	svc, store, _ := newPostgresServiceOnPool(t)
	return svc, store
}

func newPostgresServiceOnPool(t *testing.T) (*session.Service, *session.PostgresStore, *pgxpool.Pool) {
	t.Helper()

	pool := pgtest.Open(t)

	users, err := identity.NewPostgresStore(pool)
	require.NoError(t, err)
	store, err := session.NewPostgresStore(pool)
	require.NoError(t, err)

	cfg := session.DefaultConfig()
	cfg.Env = session.EnvTest
	require.NoError(t, cfg.Validate())

	svc, err := session.NewService(cfg, users, store, password.TestConfig())
	require.NoError(t, err)
	return svc, store, pool
}

func TestPostgres_RotationAndReuse(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "a@x.com", "Abc12345!", "Ann")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshSecret)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshSecret, second.RefreshSecret)

	_, err = svc.Refresh(ctx, first.RefreshSecret)
	require.ErrorIs(t, err, session.ErrTokenReuseDetected)

	var reuse session.ReuseError
	require.ErrorAs(t, err, &reuse)
	assert.Equal(t, first.User.ID, reuse.OwnerID)
	assert.Equal(t, int64(1), reuse.Revoked)

	_, err = svc.Refresh(ctx, second.RefreshSecret)
	require.ErrorIs(t, err, session.ErrTokenReuseDetected)
}

func TestPostgres_ConcurrentRotationSingleSuccessor(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "a@x.com", "Abc12345!", "Ann")
	require.NoError(t, err)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		okCount  int
		failures []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Refresh(ctx, reg.RefreshSecret)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			okCount++
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, okCount)
	for _, err := range failures {
		assert.True(t, errors.Is(err, session.ErrTokenReuseDetected) || errors.Is(err, session.ErrRefreshInvalid), "unexpected: %v", err)
	}
}

func TestPostgres_DeleteExpiredIgnoresRevocation(t *testing.T) {
	svc, store := newPostgresService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	reg, err := svc.Register(ctx, "a@x.com", "Abc12345!", "Ann")
	require.NoError(t, err)
	creds := svc.Credentials()

	expired, err := creds.Create(ctx, reg.User.ID, now.Add(-48*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	revokedLive, err := creds.Create(ctx, reg.User.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = creds.Revoke(ctx, revokedLive.Secret, now)
	require.NoError(t, err)

	n, err := creds.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.FindBySecretHash(ctx, expired.SecretHash)
	require.ErrorIs(t, err, session.ErrCredentialNotFound)
	_, err = store.FindBySecretHash(ctx, revokedLive.SecretHash)
	require.NoError(t, err)

	// The registration credential is still valid and untouched.
	got, err := creds.FindValid(ctx, reg.RefreshSecret, now)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPostgres_LogoutIdempotent(t *testing.T) {
	svc, _ := newPostgresService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "a@x.com", "Abc12345!", "Ann")
	require.NoError(t, err)

	svc.Logout(ctx, reg.RefreshSecret)
	svc.Logout(ctx, reg.RefreshSecret)

	got, err := svc.Credentials().FindValid(ctx, reg.RefreshSecret, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgres_InsertDuplicateHashIsConflict(t *testing.T) {
	svc, store := newPostgresService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "a@x.com", "Abc12345!", "Ann")
	require.NoError(t, err)

	existing, err := svc.Credentials().FindValid(ctx, reg.RefreshSecret, time.Now())
	require.NoError(t, err)
	require.NotNil(t, existing)

	dup := *existing
	dup.ID = "01J00000000000000000000000"
	require.ErrorIs(t, store.Insert(ctx, dup), session.ErrConflict)
}

func TestPostgres_OwnerDeletionKeepsCredentialsUntilExpiry(t *testing.T) {
	svc, store, pool := newPostgresServiceOnPool(t)
	ctx := context.Background()
	now := time.Now().UTC()

	reg, err := svc.Register(ctx, "a@x.com", "Abc12345!", "Ann")
	require.NoError(t, err)
	creds := svc.Credentials()

	live, err := creds.FindValid(ctx, reg.RefreshSecret, now)
	require.NoError(t, err)
	require.NotNil(t, live)
	revoked, err := creds.Create(ctx, reg.User.ID, now, now.Add(time.Hour))
	require.NoError(t, err)
	_, err = creds.Revoke(ctx, revoked.Secret, now)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, reg.User.ID)
	require.NoError(t, err)

	_, err = store.FindBySecretHash(ctx, live.SecretHash)
	require.NoError(t, err, "credential rows outlive their owner")
	_, err = store.FindBySecretHash(ctx, revoked.SecretHash)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, reg.RefreshSecret)
	require.ErrorIs(t, err, session.ErrRefreshInvalid)

	n, err := creds.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = creds.DeleteExpired(ctx, now.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = store.FindBySecretHash(ctx, live.SecretHash)
	require.ErrorIs(t, err, session.ErrCredentialNotFound)
}
