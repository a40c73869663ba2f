package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"folio/cmd/identity"
	"folio/cmd/internal/auth/session"
)

// Sessions is the session facade the handler drives. *session.Service implements it.
type Sessions interface {
	TokenVerifier
	Register(ctx context.Context, email, password, name string) (session.Issued, error)
	Login(ctx context.Context, email, password string) (session.Issued, error)
	CurrentIdentity(ctx context.Context, ownerID string) (identity.User, error)
	Refresh(ctx context.Context, secret string) (session.Issued, error)
	Logout(ctx context.Context, secret string)
	RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error)
}

// Handler wires the auth HTTP endpoints to the session facade.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	svc     Sessions
	limiter Limiter
	audit   Auditor
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLimiter overrides the default no-op limiter.
func WithLimiter(l Limiter) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.limiter = l
		}
	}
}

// WithAuditor overrides the default no-op auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, svc Sessions, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("auth api: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:     log,
		cfg:     cfg,
		svc:     svc,
		limiter: NopLimiter{},
		audit:   NopAuditor{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires the auth and admin routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	p := h.cfg.PathPrefix
	mux.HandleFunc(p+"/register", h.handleRegister)
	mux.HandleFunc(p+"/login", h.handleLogin)
	mux.HandleFunc(p+"/refresh", h.handleRefresh)
	mux.HandleFunc(p+"/logout", h.handleLogout)
	mux.Handle(p+"/me", h.Protect(http.HandlerFunc(h.handleMe)))
	mux.Handle("/api/admin/users/{id}/sessions/revoke", h.AdminOnly(http.HandlerFunc(h.handleAdminRevoke)))
}

// Protect wraps next with RequireAuth.
func (h *Handler) Protect(next http.Handler) http.Handler {
	return RequireAuth(h.svc)(next)
}

// AdminOnly wraps next with RequireAuth and RequireAdmin.
func (h *Handler) AdminOnly(next http.Handler) http.Handler {
	return RequireAuth(h.svc)(RequireAdmin(next))
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.limit(w, r, "register") {
		return
	}

	var req registerRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	issued, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeServiceError(w, h.log, "auth.register.fail", err)
		return
	}

	h.record(r, "auth.register", issued.User.ID, nil)
	h.setRefreshCookie(w, issued.RefreshSecret)
	writeJSON(w, http.StatusCreated, toSessionResponse(issued))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.limit(w, r, "login") {
		return
	}

	var req loginRequest
	if !readBody(w, r, h.cfg.MaxBodyBytes, &req) {
		return
	}

	issued, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.record(r, "auth.login.failed", "", nil)
		}
		writeServiceError(w, h.log, "auth.login.fail", err)
		return
	}

	h.record(r, "auth.login.success", issued.User.ID, nil)
	h.setRefreshCookie(w, issued.RefreshSecret)
	writeJSON(w, http.StatusOK, toSessionResponse(issued))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.limit(w, r, "refresh") {
		return
	}

	secret, ok := h.refreshFromCookie(r)
	if !ok {
		writeServiceError(w, h.log, "auth.refresh.fail", session.ErrRefreshInvalid)
		return
	}

	issued, err := h.svc.Refresh(r.Context(), secret)
	if err != nil {
		var reuse session.ReuseError
		switch {
		case errors.As(err, &reuse):
			h.record(r, "auth.refresh.reuse_detected", reuse.OwnerID, map[string]any{"revoked": reuse.Revoked})
			h.clearRefreshCookie(w)
		case errors.Is(err, session.ErrRefreshInvalid):
			h.clearRefreshCookie(w)
		}
		writeServiceError(w, h.log, "auth.refresh.fail", err)
		return
	}

	h.setRefreshCookie(w, issued.RefreshSecret)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken:     issued.AccessToken,
		AccessExpiresAt: issued.AccessExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if secret, ok := h.refreshFromCookie(r); ok {
		h.svc.Logout(r.Context(), secret)
		h.record(r, "auth.logout", "", nil)
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeServiceError(w, h.log, "auth.me.fail", session.ErrTokenRequired)
		return
	}

	u, err := h.svc.CurrentIdentity(r.Context(), claims.OwnerID)
	if err != nil {
		writeServiceError(w, h.log, "auth.me.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

func (h *Handler) handleAdminRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ownerID := strings.TrimSpace(r.PathValue("id"))
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "user id is required")
		return
	}

	n, err := h.svc.RevokeAllForOwner(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, h.log, "auth.admin.revoke.fail", err)
		return
	}

	admin, _ := ClaimsFromContext(r.Context())
	h.record(r, "auth.admin.sessions_revoked", ownerID, map[string]any{"admin_id": admin.OwnerID, "revoked": n})
	writeJSON(w, http.StatusOK, revokeResponse{Revoked: n})
}

// ---- helpers ----

func (h *Handler) record(r *http.Request, action, ownerID string, meta map[string]any) {
	var ip string
	if v := clientIP(r, h.cfg.TrustProxy); v != nil {
		ip = v.String()
	}
	h.audit.Record(r.Context(), Event{
		Action:    action,
		OwnerID:   ownerID,
		IP:        ip,
		UserAgent: r.UserAgent(),
		Meta:      meta,
	})
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
