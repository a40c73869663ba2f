package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"folio/cmd/internal/envvar"

	"gopkg.in/yaml.v3"
)

// Config contains the process-level runtime configuration.
//
// The auth packages read their own FOLIO_* variables; see session.LoadConfigFromEnv,
// api.LoadConfigFromEnv and password.FromEnv. Env is resolved here only and handed
// to them, so a YAML "env:" and FOLIO_ENV can never disagree.
type Config struct {
	Env       string
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// DBMaxConnLifetime recycles pooled connections, e.g. after a failover.
	DBMaxConnLifetime time.Duration

	MigrateOnStart bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	RedisURL string
}

// Production reports whether the production hardening rules apply.
func (c Config) Production() bool { return c.Env == "production" }

// fileConfig is the optional YAML overlay. Its values are defaults that env vars override.
type fileConfig struct {
	Env       string `yaml:"env"`
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	DatabaseURL        string        `yaml:"database_url"`
	DBMaxConns         int32         `yaml:"db_max_conns"`
	DBMinConns         int32         `yaml:"db_min_conns"`
	DBMaxConnLifetime  time.Duration `yaml:"db_max_conn_lifetime"`
	MigrateOnStart     *bool         `yaml:"migrate_on_start"`
	ReadinessRequireDB *bool         `yaml:"readiness_require_db"`

	CORSAllowedOrigins   []string `yaml:"cors_allowed_origins"`
	CORSAllowCredentials *bool    `yaml:"cors_allow_credentials"`
	CORSMaxAgeSeconds    int      `yaml:"cors_max_age_seconds"`

	RedisURL string `yaml:"redis_url"`

	// Vars seeds FOLIO_* variables read by other packages when they are not already set.
	Vars map[string]string `yaml:"vars"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Env:                  "development",
		HTTPAddr:             "0.0.0.0:8080",
		LogLevel:             "info",
		LogFormat:            "json",
		ReadHeaderTimeout:    5 * time.Second,
		ReadTimeout:          15 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		MaxHeaderBytes:       1 << 20,
		DBMaxConns:           10,
		DBMinConns:           0,
		DBMaxConnLifetime:    30 * time.Minute,
		MigrateOnStart:       true,
		CORSAllowCredentials: true,
		CORSMaxAgeSeconds:    600,
	}
}

// LoadConfig builds Config from defaults, the optional YAML file at path, and env vars, in
// increasing precedence.
func LoadConfig(path string) (Config, error) {
	def := DefaultConfig()

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		fc, err := parseFileConfig(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		def = fc.overlay(def)
		if err := seedEnv(fc.Vars); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Env:       strings.ToLower(envvar.String("FOLIO_ENV", def.Env)),
		HTTPAddr:  envvar.String("FOLIO_HTTP_ADDR", def.HTTPAddr),
		LogLevel:  envvar.String("FOLIO_LOG_LEVEL", def.LogLevel),
		LogFormat: envvar.String("FOLIO_LOG_FORMAT", def.LogFormat),

		ReadHeaderTimeout: envvar.Duration("FOLIO_HTTP_READ_HEADER_TIMEOUT", def.ReadHeaderTimeout),
		ReadTimeout:       envvar.Duration("FOLIO_HTTP_READ_TIMEOUT", def.ReadTimeout),
		WriteTimeout:      envvar.Duration("FOLIO_HTTP_WRITE_TIMEOUT", def.WriteTimeout),
		IdleTimeout:       envvar.Duration("FOLIO_HTTP_IDLE_TIMEOUT", def.IdleTimeout),
		MaxHeaderBytes:    envvar.Int("FOLIO_HTTP_MAX_HEADER_BYTES", def.MaxHeaderBytes),

		DatabaseURL: envvar.String("FOLIO_DATABASE_URL", def.DatabaseURL),
		DBMaxConns:  envvar.Int32("FOLIO_DB_MAX_CONNS", def.DBMaxConns),
		DBMinConns:  envvar.Int32("FOLIO_DB_MIN_CONNS", def.DBMinConns),

		DBMaxConnLifetime: envvar.Duration("FOLIO_DB_MAX_CONN_LIFETIME", def.DBMaxConnLifetime),

		MigrateOnStart:     envvar.Bool("FOLIO_MIGRATE_ON_START", def.MigrateOnStart),
		ReadinessRequireDB: envvar.Bool("FOLIO_READINESS_REQUIRE_DB", def.ReadinessRequireDB),

		CORSAllowedOrigins:   envvar.List("FOLIO_CORS_ALLOWED_ORIGINS", def.CORSAllowedOrigins),
		CORSAllowCredentials: envvar.Bool("FOLIO_CORS_ALLOW_CREDENTIALS", def.CORSAllowCredentials),
		CORSMaxAgeSeconds:    envvar.Int("FOLIO_CORS_MAX_AGE_SECONDS", def.CORSMaxAgeSeconds),

		RedisURL: envvar.String("FOLIO_REDIS_URL", def.RedisURL),
	}

	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("FOLIO_DB_MIN_CONNS (%d) exceeds FOLIO_DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	return cfg, nil
}

func parseFileConfig(raw []byte) (fileConfig, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fileConfig{}, err
	}
	return fc, nil
}

func (fc fileConfig) overlay(c Config) Config {
	setString(&c.Env, fc.Env)
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.RedisURL, fc.RedisURL)

	setDuration(&c.ReadHeaderTimeout, fc.ReadHeaderTimeout)
	setDuration(&c.ReadTimeout, fc.ReadTimeout)
	setDuration(&c.WriteTimeout, fc.WriteTimeout)
	setDuration(&c.IdleTimeout, fc.IdleTimeout)
	setDuration(&c.DBMaxConnLifetime, fc.DBMaxConnLifetime)

	if fc.MaxHeaderBytes > 0 {
		c.MaxHeaderBytes = fc.MaxHeaderBytes
	}
	if fc.DBMaxConns > 0 {
		c.DBMaxConns = fc.DBMaxConns
	}
	if fc.DBMinConns > 0 {
		c.DBMinConns = fc.DBMinConns
	}
	if fc.CORSMaxAgeSeconds > 0 {
		c.CORSMaxAgeSeconds = fc.CORSMaxAgeSeconds
	}
	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = append([]string(nil), fc.CORSAllowedOrigins...)
	}
	if fc.MigrateOnStart != nil {
		c.MigrateOnStart = *fc.MigrateOnStart
	}
	if fc.ReadinessRequireDB != nil {
		c.ReadinessRequireDB = *fc.ReadinessRequireDB
	}
	if fc.CORSAllowCredentials != nil {
		c.CORSAllowCredentials = *fc.CORSAllowCredentials
	}
	return c
}

func seedEnv(vars map[string]string) error {
	for k, v := range vars {
		k = strings.TrimSpace(k)
		if !strings.HasPrefix(k, "FOLIO_") {
			return fmt.Errorf("config vars: %q is not a FOLIO_ variable", k)
		}
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("config vars: %s: %w", k, err)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
