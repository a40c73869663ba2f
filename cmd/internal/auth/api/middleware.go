package api

import (
	"context"
	"net/http"
	"strings"

	"folio/cmd/internal/auth/session"
)

// TokenVerifier verifies access tokens. *session.Service implements it.
type TokenVerifier interface {
	Verify(accessToken string) (session.AccessClaims, error)
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, c session.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims attached by RequireAuth.
func ClaimsFromContext(ctx context.Context) (session.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(session.AccessClaims)
	return c, ok
}

// RequireAuth rejects requests without a valid bearer access token and attaches
// the decoded claims to the request context.
func RequireAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, codeTokenRequired, "access token required")
				return
			}
			claims, err := v.Verify(tok)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeTokenInvalid, "access token invalid")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin admits only requests whose claims carry the ADMIN role.
// It must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, codeTokenRequired, "access token required")
			return
		}
		if !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, codeAdminRequired, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts "Bearer <token>" with a case-insensitive scheme and
// arbitrary surrounding whitespace.
func bearerToken(r *http.Request) (string, bool) {
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}
	return fields[1], true
}
