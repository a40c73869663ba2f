package api

import (
	"errors"
	"log/slog"
	"net/http"

	"folio/cmd/internal/auth/session"
)

// Stable error keys returned in {"error":{"code":...}}.
const (
	codeInvalidRequest     = "invalid_request"
	codeInvalidCredentials = "invalid_credentials"
	codeEmailExists        = "email_exists"
	codeTokenRequired      = "token_required"
	codeTokenInvalid       = "token_invalid"
	codeRefreshInvalid     = "refresh_invalid"
	codeTokenReuse         = "token_reuse_detected"
	codeAdminRequired      = "admin_required"
	codeUserNotFound       = "user_not_found"
	codeConflict           = "conflict"
	codeRateLimited        = "rate_limited"
	codeInternal           = "internal_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// errorMapping is checked in order; reuse comes first because a reuse error whose
// mass revocation failed also matches ErrInternal.
var errorMapping = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{session.ErrTokenReuseDetected, http.StatusUnauthorized, codeTokenReuse, "refresh token reuse detected"},
	{session.ErrInvalidInput, http.StatusBadRequest, codeInvalidRequest, "invalid request"},
	{session.ErrInvalidCredentials, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password"},
	{session.ErrEmailExists, http.StatusConflict, codeEmailExists, "email already registered"},
	{session.ErrTokenRequired, http.StatusUnauthorized, codeTokenRequired, "access token required"},
	{session.ErrTokenInvalid, http.StatusUnauthorized, codeTokenInvalid, "access token invalid"},
	{session.ErrRefreshInvalid, http.StatusUnauthorized, codeRefreshInvalid, "refresh token invalid"},
	{session.ErrAdminRequired, http.StatusForbidden, codeAdminRequired, "admin role required"},
	{session.ErrUserNotFound, http.StatusNotFound, codeUserNotFound, "user not found"},
	{session.ErrConflict, http.StatusConflict, codeConflict, "please retry"},
}

// statusFor maps a session error to its HTTP status and stable key.
func statusFor(err error) (int, string, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.msg
		}
	}
	return http.StatusInternalServerError, codeInternal, "internal error"
}

// writeServiceError writes the mapped error and logs anything that maps to 500.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, event string, err error) {
	status, code, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(event, "err", err)
	}
	writeError(w, status, code, msg)
}
