package api

import (
	"net/http"
	"strings"
	"time"

	"folio/cmd/internal/envvar"
)

// Config controls the HTTP boundary of the auth subsystem.
type Config struct {
	// PathPrefix is both the route prefix and the refresh cookie path.
	PathPrefix string

	TrustProxy   bool
	MaxBodyBytes int64

	CookieName     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// RefreshMaxAge is the refresh cookie Max-Age; it matches the refresh lifetime.
	RefreshMaxAge time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		PathPrefix:      "/api/auth",
		MaxBodyBytes:    1 << 20,
		CookieName:      "refresh_token",
		CookieSameSite:  http.SameSiteStrictMode,
		RefreshMaxAge:   7 * 24 * time.Hour,
		RateLimitMax:    20,
		RateLimitWindow: time.Minute,
	}
}

// LoadConfigFromEnv loads the boundary config. refreshTTL sets the cookie Max-Age;
// production forces Secure cookies.
func LoadConfigFromEnv(production bool, refreshTTL time.Duration) Config {
	def := DefaultConfig()

	cfg := Config{
		PathPrefix:      normalizePrefix(envvar.String("FOLIO_AUTH_PATH_PREFIX", def.PathPrefix)),
		TrustProxy:      envvar.Bool("FOLIO_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:    envvar.Int64("FOLIO_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		CookieName:      envvar.String("FOLIO_COOKIE_NAME", def.CookieName),
		CookieDomain:    envvar.String("FOLIO_COOKIE_DOMAIN", ""),
		CookieSecure:    envvar.Bool("FOLIO_COOKIE_SECURE", false),
		CookieSameSite:  parseSameSite(envvar.String("FOLIO_COOKIE_SAMESITE", "strict")),
		RefreshMaxAge:   refreshTTL,
		RateLimitMax:    envvar.Int("FOLIO_RATE_LIMIT_MAX", def.RateLimitMax),
		RateLimitWindow: envvar.Duration("FOLIO_RATE_LIMIT_WINDOW", def.RateLimitWindow),
	}

	if production {
		cfg.CookieSecure = true
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.RefreshMaxAge <= 0 {
		cfg.RefreshMaxAge = def.RefreshMaxAge
	}

	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

func normalizePrefix(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	if p == "/" {
		return "/api/auth"
	}
	return p
}
