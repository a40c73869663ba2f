package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// MinHMACKeyBytes is the smallest HMAC key accepted for production hashing.
const MinHMACKeyBytes = 32

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher maps opaque secrets to the 64-char hex digests kept in storage.
// With a key it uses HMAC-SHA256, without one plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher. When requireKey is set the key must be at least MinHMACKeyBytes.
func NewHasher(key string, requireKey bool) (Hasher, error) {
	raw := strings.TrimSpace(key)
	if raw == "" {
		if requireKey {
			return Hasher{}, ErrHMACKeyMissing
		}
		return Hasher{}, nil
	}
	if requireKey && len(raw) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return Hasher{key: []byte(raw)}, nil
}

// Keyed reports whether the hasher runs in HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the storage digest of secret.
func (h Hasher) Hash(secret string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, h.key)
}

// NewOpaque returns nBytes of crypto/rand entropy, base64url-encoded without padding.
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", fmt.Errorf("token: invalid size %d", nBytes)
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
