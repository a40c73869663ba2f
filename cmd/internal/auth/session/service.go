package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"folio/cmd/identity"
	"folio/cmd/security/password"
	"folio/cmd/security/token"
)

// maxIssueAttempts bounds retries after a refresh secret collision.
const maxIssueAttempts = 3

// Service implements register, login, identity lookup, refresh rotation and logout.
//
// It is safe for concurrent use; all shared state lives in the stores.
type Service struct {
	cfg     Config
	users   identity.Store
	creds   *Credentials
	signer  *Signer
	pw      password.Config
	now     func() time.Time
	log     *slog.Logger
	metrics *Metrics

	// dummyHash is verified against when the email is unknown so that the
	// unknown-email path costs the same as a wrong password.
	dummyHash string
}

// Issued is the result of register, login and refresh.
type Issued struct {
	User             identity.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshSecret    string
	RefreshExpiresAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for security events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics sets the counters updated by the service.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a Service. cfg must already be validated.
func NewService(cfg Config, users identity.Store, store Store, pw password.Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("%w: nil identity store", ErrConfig)
	}

	hasher, err := token.NewHasher(cfg.RefreshHashKey, cfg.Production())
	if err != nil {
		return nil, fmt.Errorf("%w: refresh hash key: %w", ErrConfig, err)
	}
	creds, err := NewCredentials(store, hasher, cfg.RefreshSecretBytes)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		users:  users,
		creds:  creds,
		signer: signer,
		pw:     pw,
		now:    func() time.Time { return time.Now().UTC() },
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dummyHash, err = pw.Hash(strings.Repeat("x", max(pw.Policy.MinLength, 8)))
	if err != nil {
		return nil, fmt.Errorf("%w: dummy hash: %w", ErrConfig, err)
	}
	return s, nil
}

// Credentials exposes the refresh credential API, used by the sweeper and CLI.
func (s *Service) Credentials() *Credentials { return s.creds }

// Config returns the configuration the service was built with.
func (s *Service) Config() Config { return s.cfg }

// Register creates a USER identity and issues its first session.
//
// The email-taken check runs before hashing; the unique index on the normalized
// email is the backstop for concurrent registrations.
func (s *Service) Register(ctx context.Context, email, plain, name string) (Issued, error) {
	const op = "session.Register"

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if !identity.ValidEmail(email) {
		return Issued{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if name == "" {
		return Issued{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := s.pw.Validate(plain); err != nil {
		return Issued{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return Issued{}, ErrEmailExists
	case !identity.IsNotFound(err):
		return Issued{}, internal(op, err)
	}

	hash, err := s.pw.Hash(plain)
	if err != nil {
		return Issued{}, internal(op, err)
	}

	now := s.now()
	u, err := s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		DisplayName:  name,
		PasswordHash: hash,
		Role:         identity.RoleUser,
		Now:          now,
	})
	switch {
	case identity.IsConflict(err):
		return Issued{}, ErrEmailExists
	case identity.IsInvalidInput(err):
		return Issued{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case err != nil:
		return Issued{}, internal(op, err)
	}

	s.log.Info("auth.register.ok", "owner_id", u.ID)
	return s.issue(ctx, op, u, now)
}

// Login authenticates email and password and issues a new session.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, plain string) (Issued, error) {
	const op = "session.Login"

	email = strings.TrimSpace(email)
	if email == "" || plain == "" {
		return Issued{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if s.pw.Policy.MaxLength > 0 && utf8.RuneCountInString(plain) > s.pw.Policy.MaxLength {
		s.metrics.login("fail")
		return Issued{}, ErrInvalidCredentials
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !identity.IsNotFound(err) && !identity.IsInvalidInput(err) {
			return Issued{}, internal(op, err)
		}
		_ = s.pw.Verify(plain, s.dummyHash)
		s.metrics.login("fail")
		s.log.Info("auth.login.fail", "reason", "unknown_email")
		return Issued{}, ErrInvalidCredentials
	}

	if !s.pw.Verify(plain, u.PasswordHash) {
		s.metrics.login("fail")
		s.log.Info("auth.login.fail", "reason", "password_mismatch", "owner_id", u.ID)
		return Issued{}, ErrInvalidCredentials
	}

	out, err := s.issue(ctx, op, u, s.now())
	if err != nil {
		return Issued{}, err
	}
	s.metrics.login("ok")
	s.log.Info("auth.login.ok", "owner_id", u.ID)
	return out, nil
}

// CurrentIdentity returns the identity behind ownerID, or ErrUserNotFound once it is gone.
func (s *Service) CurrentIdentity(ctx context.Context, ownerID string) (identity.User, error) {
	u, err := s.users.GetUserByID(ctx, ownerID)
	switch {
	case err == nil:
		return u, nil
	case identity.IsNotFound(err), identity.IsInvalidInput(err):
		return identity.User{}, ErrUserNotFound
	default:
		return identity.User{}, internal("session.CurrentIdentity", err)
	}
}

// Logout revokes the credential for secret if it is still unrevoked.
// Unknown, expired and already revoked secrets are a successful no-op, and
// storage failures are logged rather than returned.
func (s *Service) Logout(ctx context.Context, secret string) {
	revoked, err := s.creds.Revoke(ctx, secret, s.now())
	if err != nil {
		s.log.Error("auth.logout.fail", "err", err)
		return
	}
	s.log.Info("auth.logout", "revoked", revoked)
}

// RevokeAllForOwner revokes every refresh credential of ownerID.
func (s *Service) RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	const op = "session.RevokeAllForOwner"

	if _, err := s.CurrentIdentity(ctx, ownerID); err != nil {
		return 0, err
	}
	n, err := s.creds.RevokeAllForOwner(ctx, ownerID, s.now())
	if err != nil {
		return 0, internal(op, err)
	}
	s.log.Warn("auth.sessions.revoked_all", "owner_id", ownerID, "revoked", n)
	return n, nil
}

// Verify checks an access token against the current time.
func (s *Service) Verify(accessToken string) (AccessClaims, error) {
	return s.signer.Verify(accessToken, s.now())
}

func (s *Service) issue(ctx context.Context, op string, u identity.User, now time.Time) (Issued, error) {
	refreshExp := now.Add(s.cfg.RefreshTTL)

	var (
		cred RefreshCredential
		err  error
	)
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		cred, err = s.creds.Create(ctx, u.ID, now, refreshExp)
		if !errors.Is(err, ErrConflict) {
			break
		}
		s.log.Warn("auth.refresh.secret_collision", "attempt", attempt+1)
	}
	if err != nil {
		return Issued{}, internal(op, err)
	}

	return s.signFor(op, u, cred, now)
}

func (s *Service) signFor(op string, u identity.User, cred RefreshCredential, now time.Time) (Issued, error) {
	access, accessExp, err := s.signer.Sign(AccessClaims{
		OwnerID: u.ID,
		Email:   u.Email,
		Role:    u.Role,
	}, now)
	if err != nil {
		return Issued{}, internal(op, err)
	}

	return Issued{
		User:             u,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshSecret:    cred.Secret,
		RefreshExpiresAt: cred.ExpiresAt,
	}, nil
}
