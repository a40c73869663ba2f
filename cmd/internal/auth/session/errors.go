package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed registration or login input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailExists is returned by Register when the email is already taken.
	ErrEmailExists = errors.New("email already registered")

	// ErrTokenRequired is returned when no bearer token was presented.
	ErrTokenRequired = errors.New("access token required")

	// ErrTokenInvalid covers malformed, forged and expired access tokens alike.
	ErrTokenInvalid = errors.New("access token invalid")

	// ErrRefreshInvalid covers unknown and expired refresh secrets alike.
	ErrRefreshInvalid = errors.New("refresh credential invalid")

	// ErrTokenReuseDetected is returned when a revoked refresh secret is presented again.
	// The owner's refresh credentials have already been revoked when it is returned.
	ErrTokenReuseDetected = errors.New("refresh credential reuse detected")

	// ErrAdminRequired is returned when an authenticated caller lacks the ADMIN role.
	ErrAdminRequired = errors.New("admin role required")

	// ErrUserNotFound is returned when the identity behind a token no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrConflict is returned when a generated refresh secret collides with a stored one.
	ErrConflict = errors.New("refresh credential conflict")

	// ErrInternal marks storage or infrastructure failures.
	ErrInternal = errors.New("internal error")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrCredentialNotFound is returned by Store implementations for unknown secret digests.
	ErrCredentialNotFound = errors.New("refresh credential not found")
)

// ReuseError reports a reuse event together with the mass revocation it caused.
type ReuseError struct {
	OwnerID string
	Revoked int64
}

func (e ReuseError) Error() string {
	return fmt.Sprintf("%s: owner %s, %d credentials revoked", ErrTokenReuseDetected.Error(), e.OwnerID, e.Revoked)
}

func (e ReuseError) Unwrap() error { return ErrTokenReuseDetected }

// OpError wraps an unexpected failure of operation Op.
// It matches both ErrInternal and the underlying cause.
type OpError struct {
	Op  string
	Err error
}

func (e OpError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e OpError) Unwrap() []error { return []error{ErrInternal, e.Err} }

var known = []error{
	ErrInvalidInput,
	ErrInvalidCredentials,
	ErrEmailExists,
	ErrTokenRequired,
	ErrTokenInvalid,
	ErrRefreshInvalid,
	ErrTokenReuseDetected,
	ErrAdminRequired,
	ErrUserNotFound,
	ErrConflict,
	ErrInternal,
}

// internal passes taxonomy errors through and wraps everything else in OpError.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	return OpError{Op: op, Err: err}
}
