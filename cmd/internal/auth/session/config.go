package session

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"folio/cmd/internal/envvar"
)

// Environments recognised by Config.Env.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// MinSigningKeyBytes is the shortest HS256 key accepted outside the test environment.
const MinSigningKeyBytes = 32

// DefaultRefreshTTL applies when the configured refresh lifetime cannot be parsed.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// testSigningKey stands in for a missing key when Env is "test".
const testSigningKey = "folio-test-signing-key-not-for-production-use"

// Config is the immutable session configuration, built once at startup.
type Config struct {
	Env string

	// Issuer is the "iss" claim of access tokens.
	Issuer string

	// SigningKey is the HS256 key for access tokens.
	SigningKey []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RefreshSecretBytes is the entropy of generated refresh secrets.
	RefreshSecretBytes int

	// RefreshHashKey keys the HMAC used for stored secret digests. Required in production.
	RefreshHashKey string

	SweepInterval time.Duration
}

// DefaultConfig returns development defaults without a signing key.
func DefaultConfig() Config {
	return Config{
		Env:                EnvDevelopment,
		Issuer:             "folio",
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         DefaultRefreshTTL,
		RefreshSecretBytes: 32,
		SweepInterval:      24 * time.Hour,
	}
}

// Production reports whether the production hardening rules apply.
func (c Config) Production() bool { return c.Env == EnvProduction }

// Validate enforces the startup invariants, filling the test key when allowed.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("%w: unknown env %q", ErrConfig, c.Env)
	}

	if len(c.SigningKey) == 0 && c.Env == EnvTest {
		c.SigningKey = []byte(testSigningKey)
	}
	if len(c.SigningKey) == 0 {
		return fmt.Errorf("%w: signing key is required", ErrConfig)
	}
	if len(c.SigningKey) < MinSigningKeyBytes && c.Env != EnvTest {
		return fmt.Errorf("%w: signing key must be at least %d bytes", ErrConfig, MinSigningKeyBytes)
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: lifetimes must be positive", ErrConfig)
	}
	if c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("%w: access lifetime must be shorter than refresh lifetime", ErrConfig)
	}
	if c.RefreshSecretBytes < 32 || c.RefreshSecretBytes > 64 {
		return fmt.Errorf("%w: refresh secret bytes must be in [32..64]", ErrConfig)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive", ErrConfig)
	}
	return nil
}

// LoadConfigFromEnv loads and validates the session configuration for env, the
// process environment resolved by the caller (development|production|test).
//
// Env surface:
//   - FOLIO_JWT_SECRET (required, >= 32 bytes outside test)
//   - FOLIO_JWT_ISSUER
//   - FOLIO_ACCESS_TTL (Go duration, e.g. 15m)
//   - FOLIO_REFRESH_TTL (digits + d|h|m|s, e.g. 7d; invalid values fall back to 7d)
//   - FOLIO_REFRESH_SECRET_BYTES
//   - FOLIO_REFRESH_HASH_KEY
//   - FOLIO_SWEEP_INTERVAL (Go duration)
func LoadConfigFromEnv(env string, log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := DefaultConfig()

	if v := strings.ToLower(strings.TrimSpace(env)); v != "" {
		cfg.Env = v
	}
	cfg.Issuer = envvar.String("FOLIO_JWT_ISSUER", cfg.Issuer)
	if v := envvar.String("FOLIO_JWT_SECRET", ""); v != "" {
		cfg.SigningKey = []byte(v)
	}

	if v := envvar.String("FOLIO_ACCESS_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: FOLIO_ACCESS_TTL", ErrConfig)
		}
		cfg.AccessTTL = d
	}

	if v, ok := os.LookupEnv("FOLIO_REFRESH_TTL"); ok {
		cfg.RefreshTTL = LifetimeOrDefault(v, log)
	}

	if v := envvar.String("FOLIO_REFRESH_SECRET_BYTES", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: FOLIO_REFRESH_SECRET_BYTES", ErrConfig)
		}
		cfg.RefreshSecretBytes = n
	}

	cfg.RefreshHashKey = envvar.String("FOLIO_REFRESH_HASH_KEY", "")

	if v := envvar.String("FOLIO_SWEEP_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: FOLIO_SWEEP_INTERVAL", ErrConfig)
		}
		cfg.SweepInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var lifetimeRe = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseLifetime parses "<digits><d|h|m|s>", e.g. "7d" or "24h".
func ParseLifetime(s string) (time.Duration, error) {
	m := lifetimeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}

	unit := map[string]time.Duration{
		"d": 24 * time.Hour,
		"h": time.Hour,
		"m": time.Minute,
		"s": time.Second,
	}[m[2]]

	if n > int64((1<<63-1)/unit) {
		return 0, fmt.Errorf("lifetime %q overflows", s)
	}
	return time.Duration(n) * unit, nil
}

// LifetimeOrDefault parses s, logging a warning and returning DefaultRefreshTTL when it is invalid.
func LifetimeOrDefault(s string, log *slog.Logger) time.Duration {
	d, err := ParseLifetime(s)
	if err != nil {
		if log != nil {
			log.Warn("session.config.refresh_ttl.invalid", "value", s, "fallback", DefaultRefreshTTL.String())
		}
		return DefaultRefreshTTL
	}
	return d
}
