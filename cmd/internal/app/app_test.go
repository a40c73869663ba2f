package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"folio/cmd/internal/auth/api"
	"folio/cmd/internal/auth/session"
	"folio/cmd/security/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryApp(t *testing.T, mutate func(*Config)) *App {
	t.Helper()

	t.Setenv("FOLIO_JWT_SECRET", "")
	t.Setenv("FOLIO_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("FOLIO_ARGON2_ITERATIONS", "1")
	t.Setenv("FOLIO_ARGON2_PARALLELISM", "1")

	cfg := DefaultConfig()
	cfg.Env = "test"
	cfg.CORSAllowedOrigins = []string{"https://app.example.com"}
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_OperationalRoutes(t *testing.T) {
	h := newMemoryApp(t, nil).Handler()

	rec := serve(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	h := newMemoryApp(t, func(c *Config) { c.ReadinessRequireDB = true }).Handler()

	rec := serve(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestApp_AuthRoutesAndMetrics(t *testing.T) {
	h := newMemoryApp(t, nil).Handler()

	rec := serve(h, http.MethodPost, "/api/auth/register",
		`{"email":"ann@example.com","password":"Abc12345!","name":"Ann"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(h, http.MethodPost, "/api/auth/login", `{"email":"ann@example.com","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `folio_auth_logins_total{result="fail"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_ProductionRequiresDatabase(t *testing.T) {
	t.Setenv("FOLIO_JWT_SECRET", strings.Repeat("p", 32))
	t.Setenv("FOLIO_REFRESH_HASH_KEY", strings.Repeat("h", 32))

	cfg := DefaultConfig()
	cfg.Env = "production"
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOLIO_DATABASE_URL")
}

func TestNew_ProductionFromConfigFile(t *testing.T) {
	p := writeConfig(t, "env: production\n")
	t.Setenv("FOLIO_ENV", "")
	t.Setenv("FOLIO_DATABASE_URL", "")
	t.Setenv("FOLIO_JWT_SECRET", strings.Repeat("p", 32))
	t.Setenv("FOLIO_REFRESH_HASH_KEY", "")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.True(t, cfg.Production())

	_, err = New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOLIO_DATABASE_URL")
}

func TestProductionEnv_HardensCookieAndHashKey(t *testing.T) {
	t.Setenv("FOLIO_JWT_SECRET", strings.Repeat("p", 32))
	t.Setenv("FOLIO_REFRESH_HASH_KEY", "")

	cfg := DefaultConfig()
	cfg.Env = "production"
	cfg.DatabaseURL = ""

	sessCfg, err := session.LoadConfigFromEnv(cfg.Env, nil)
	require.NoError(t, err)
	assert.True(t, sessCfg.Production())
	assert.True(t, api.LoadConfigFromEnv(cfg.Production(), sessCfg.RefreshTTL).CookieSecure)

	_, err = token.NewHasher(sessCfg.RefreshHashKey, sessCfg.Production())
	assert.Error(t, err)
}

func TestTasks_RequireDatabase(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	ctx := context.Background()

	_, err := Migrate(ctx, cfg, log)
	assert.ErrorIs(t, err, ErrNoDatabase)

	cfg.Env = "test"
	_, err = SweepOnce(ctx, cfg, log)
	assert.ErrorIs(t, err, ErrNoDatabase)
}
