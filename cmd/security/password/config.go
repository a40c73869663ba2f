package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Argon2idParams is the Argon2id work factor. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted plaintext length (in runes).
type Policy struct {
	MinLength int
	MaxLength int
}

// Config is the hasher configuration. The zero value is not usable; start from DefaultConfig.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login settings: 64 MiB, 3 passes, up to 4 lanes.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// TestConfig is a deliberately cheap configuration for unit tests.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

// Validate checks the length policy without touching the input.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if c.Policy.MaxLength > 0 && n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}

// FromEnv overlays environment variables on DefaultConfig.
//
// Env surface:
//   - FOLIO_PASSWORD_MIN_LEN, FOLIO_PASSWORD_MAX_LEN
//   - FOLIO_ARGON2_MEMORY_KIB, FOLIO_ARGON2_ITERATIONS, FOLIO_ARGON2_PARALLELISM
//   - FOLIO_ARGON2_SALT_LEN, FOLIO_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		dst      *int
	}{
		{"FOLIO_PASSWORD_MIN_LEN", 1, 1024, &cfg.Policy.MinLength},
		{"FOLIO_PASSWORD_MAX_LEN", 1, 4096, &cfg.Policy.MaxLength},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := parseRange(v, uint64(e.min), uint64(e.max))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = int(n) // #nosec G115 -- bounded by parseRange.
	}

	u32s := []struct {
		key      string
		min, max uint64
		dst      *uint32
	}{
		{"FOLIO_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB},
		{"FOLIO_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"FOLIO_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"FOLIO_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, e := range u32s {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := parseRange(v, e.min, e.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = uint32(n) // #nosec G115 -- bounded by parseRange.
	}

	if v, ok := os.LookupEnv("FOLIO_ARGON2_PARALLELISM"); ok {
		n, err := parseRange(v, 1, math.MaxUint8)
		if err != nil {
			return Config{}, fmt.Errorf("FOLIO_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(n) // #nosec G115 -- bounded by parseRange.
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseRange(s string, minVal, maxVal uint64) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}
