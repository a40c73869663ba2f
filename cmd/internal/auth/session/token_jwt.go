package session

import (
	"fmt"
	"strings"
	"time"

	"folio/cmd/identity"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the identity carried by an access token.
type AccessClaims struct {
	OwnerID   string
	Email     string
	Role      identity.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsAdmin reports whether the claims grant the ADMIN role.
func (c AccessClaims) IsAdmin() bool { return c.Role == identity.RoleAdmin }

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Signer issues and verifies HS256 access tokens. It is safe for concurrent use.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// NewSigner builds a Signer from a validated Config.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("%w: signing key is required", ErrConfig)
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access ttl must be positive", ErrConfig)
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &Signer{
		key:    key,
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
	}, nil
}

// Sign returns a token for claims valid from now until now+AccessTTL.
func (s *Signer) Sign(claims AccessClaims, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(claims.OwnerID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if !claims.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, claims.Role)
	}

	iat := now.UTC().Truncate(time.Second)
	exp := iat.Add(s.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.OwnerID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: claims.Email,
		Role:  string(claims.Role),
	})

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses token and checks signature, algorithm, issuer and expiry against now.
// Every failure is reported as ErrTokenInvalid.
func (s *Signer) Verify(token string, now time.Time) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var c jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return AccessClaims{}, ErrTokenInvalid
	}

	role := identity.Role(c.Role)
	if c.Subject == "" || !role.Valid() {
		return AccessClaims{}, ErrTokenInvalid
	}

	out := AccessClaims{
		OwnerID:   c.Subject,
		Email:     c.Email,
		Role:      role,
		ExpiresAt: c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}
