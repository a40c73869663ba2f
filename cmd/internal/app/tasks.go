package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"folio/cmd/identity"
	"folio/cmd/internal/auth/session"
	"folio/cmd/internal/migrations"
	"folio/cmd/security/password"
	"folio/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDatabase is returned by maintenance tasks that need FOLIO_DATABASE_URL.
var ErrNoDatabase = errors.New("FOLIO_DATABASE_URL is not set")

func withPool(ctx context.Context, cfg Config, fn func(*pgxpool.Pool) error) error {
	if cfg.DatabaseURL == "" {
		return ErrNoDatabase
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	return fn(pool)
}

// Migrate applies pending schema migrations and reports the resulting version.
func Migrate(ctx context.Context, cfg Config, log Logger) (int64, error) {
	var version int64
	err := withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
		if err := migrations.Up(ctx, pool); err != nil {
			return err
		}
		v, err := migrations.Version(ctx, pool)
		if err != nil {
			return fmt.Errorf("migrations: version: %w", err)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Info("db.migrated", "version", version)
	return version, nil
}

// SweepOnce deletes expired refresh credentials once and reports how many went.
func SweepOnce(ctx context.Context, cfg Config, log Logger) (int64, error) {
	sessCfg, err := session.LoadConfigFromEnv(cfg.Env, log)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
		store, err := session.NewPostgresStore(pool)
		if err != nil {
			return err
		}
		hasher, err := token.NewHasher(sessCfg.RefreshHashKey, sessCfg.Production())
		if err != nil {
			return err
		}
		creds, err := session.NewCredentials(store, hasher, sessCfg.RefreshSecretBytes)
		if err != nil {
			return err
		}
		sw, err := session.NewSweeper(creds, sessCfg.SweepInterval, log, nil)
		if err != nil {
			return err
		}
		deleted, err = sw.RunOnce(ctx)
		return err
	})
	return deleted, err
}

// CreateAdmin bootstraps an ADMIN identity. Registration only ever creates USERs.
func CreateAdmin(ctx context.Context, cfg Config, log Logger, email, plain, name string) (identity.User, error) {
	pwCfg, err := password.FromEnv()
	if err != nil {
		return identity.User{}, err
	}
	if err := pwCfg.Validate(plain); err != nil {
		return identity.User{}, err
	}
	hash, err := pwCfg.Hash(plain)
	if err != nil {
		return identity.User{}, err
	}

	var u identity.User
	err = withPool(ctx, cfg, func(pool *pgxpool.Pool) error {
		users, err := identity.NewPostgresStore(pool)
		if err != nil {
			return err
		}
		u, err = users.CreateUser(ctx, identity.CreateUserInput{
			Email:        email,
			DisplayName:  name,
			PasswordHash: hash,
			Role:         identity.RoleAdmin,
			Now:          time.Now().UTC(),
		})
		if identity.IsConflict(err) {
			return fmt.Errorf("create admin: %s is already registered", email)
		}
		return err
	})
	if err != nil {
		return identity.User{}, err
	}

	log.Warn("auth.admin.created", "owner_id", u.ID)
	return u, nil
}
