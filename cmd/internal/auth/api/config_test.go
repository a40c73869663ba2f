package api

import (
	"net/http"
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("FOLIO_AUTH_PATH_PREFIX", "")
	t.Setenv("FOLIO_COOKIE_SAMESITE", "")
	t.Setenv("FOLIO_COOKIE_SECURE", "")

	cfg := LoadConfigFromEnv(false, 48*time.Hour)
	if cfg.PathPrefix != "/api/auth" {
		t.Fatalf("prefix: got %q", cfg.PathPrefix)
	}
	if cfg.CookieSecure {
		t.Fatalf("secure should default to false outside production")
	}
	if cfg.CookieSameSite != http.SameSiteStrictMode {
		t.Fatalf("samesite: got %v", cfg.CookieSameSite)
	}
	if cfg.RefreshMaxAge != 48*time.Hour {
		t.Fatalf("max age: got %v", cfg.RefreshMaxAge)
	}
}

func TestLoadConfigFromEnv_ProductionForcesSecure(t *testing.T) {
	t.Setenv("FOLIO_COOKIE_SECURE", "false")
	if cfg := LoadConfigFromEnv(true, time.Hour); !cfg.CookieSecure {
		t.Fatalf("production must force secure cookies")
	}
}

func TestLoadConfigFromEnv_SameSiteNoneForcesSecure(t *testing.T) {
	t.Setenv("FOLIO_COOKIE_SAMESITE", "None")
	t.Setenv("FOLIO_COOKIE_SECURE", "false")
	cfg := LoadConfigFromEnv(false, time.Hour)
	if cfg.CookieSameSite != http.SameSiteNoneMode || !cfg.CookieSecure {
		t.Fatalf("got samesite=%v secure=%v", cfg.CookieSameSite, cfg.CookieSecure)
	}
}

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"auth":      "/auth",
		"/v1/auth/": "/v1/auth",
		"  /x  ":    "/x",
		"/":         "/api/auth",
		"":          "/api/auth",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
