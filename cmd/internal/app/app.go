// Package app wires the folio server runtime: config, logging, storage, the auth
// HTTP surface and the cleanup sweep.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"folio/cmd/identity"
	"folio/cmd/internal/auth/api"
	"folio/cmd/internal/auth/session"
	"folio/cmd/internal/migrations"
	"folio/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App is the folio server runtime. It owns the DB pool, the Redis client and the sweeper.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	rdb       *redis.Client

	registry *prometheus.Registry
	sessions *session.Service
	sweeper  *session.Sweeper
	auth     *api.Handler
}

// New constructs a fully wired App from cfg. In memory mode (no FOLIO_DATABASE_URL)
// identities and credentials live only for the life of the process.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv(cfg.Env, log)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	authCfg := api.LoadConfigFromEnv(cfg.Production(), sessCfg.RefreshTTL)

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	users, creds, auditor, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	metrics := session.NewMetrics(a.registry)
	a.sessions, err = session.NewService(sessCfg, users, creds, pwCfg,
		session.WithLogger(log),
		session.WithMetrics(metrics),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	a.sweeper, err = session.NewSweeper(a.sessions.Credentials(), sessCfg.SweepInterval, log, metrics)
	if err != nil {
		a.close()
		return nil, err
	}

	limiter, err := a.openLimiter(ctx, authCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.auth, err = api.NewHandler(log, authCfg, a.sessions, api.WithLimiter(limiter), api.WithAuditor(auditor))
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) (identity.Store, session.Store, api.Auditor, error) {
	if a.cfg.DatabaseURL == "" {
		if a.cfg.Production() {
			return nil, nil, nil, errors.New("FOLIO_DATABASE_URL is required in production")
		}
		a.log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), session.NewMemoryStore(), api.NopAuditor{}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db: %w", err)
	}
	a.dbPool, a.dbEnabled = pool, true

	if a.cfg.MigrateOnStart {
		if err := migrations.Up(ctx, pool); err != nil {
			a.close()
			return nil, nil, nil, err
		}
		a.log.Info("db.migrated")
	}

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		a.close()
		return nil, nil, nil, err
	}
	creds, err := session.NewPostgresStore(pool)
	if err != nil {
		a.close()
		return nil, nil, nil, err
	}

	a.log.Info("db.enabled.postgres_store")
	return users, creds, api.NewPostgresAuditor(pool, a.log), nil
}

func (a *App) openLimiter(ctx context.Context, authCfg api.Config) (api.Limiter, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("rate_limit.disabled")
		return api.NopLimiter{}, nil
	}

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("FOLIO_REDIS_URL: %w", err)
	}
	a.rdb = redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.rdb.Ping(pingCtx).Err(); err != nil {
		// The limiter fails open, so an unreachable Redis is not fatal.
		a.log.Warn("rate_limit.redis.unreachable", "err", err)
	}

	return api.NewRedisLimiter(a.rdb, authCfg.RateLimitMax, authCfg.RateLimitWindow)
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:       a.log,
		cfg:       a.cfg,
		dbPool:    a.dbPool,
		dbEnabled: a.dbEnabled,
		gatherer:  a.registry,
		auth:      a.auth,
	})
	return handler(mux, a.cfg, a.log)
}

// Run starts the sweeper and the HTTP server and blocks until ctx is done or the
// server fails. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "redis_enabled", a.rdb != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
