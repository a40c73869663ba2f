package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one security-relevant auth action.
type Event struct {
	Action    string
	OwnerID   string
	IP        string
	UserAgent string
	Meta      map[string]any
}

// Auditor records security events. Record must not fail the request.
type Auditor interface {
	Record(ctx context.Context, e Event)
}

// NopAuditor discards events. It is used in memory mode.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, Event) {}

// PostgresAuditor appends events to auth_audit_log.
type PostgresAuditor struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresAuditor returns an Auditor backed by pool.
func NewPostgresAuditor(pool *pgxpool.Pool, log *slog.Logger) *PostgresAuditor {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{pool: pool, log: log}
}

func (a *PostgresAuditor) Record(ctx context.Context, e Event) {
	if a == nil || a.pool == nil {
		return
	}

	action := strings.TrimSpace(e.Action)
	if action == "" {
		return
	}

	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := a.pool.Exec(context.WithoutCancel(ctx), `
		INSERT INTO auth_audit_log (action, owner_id, ip, user_agent, meta, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, now())
	`, action, trimOrNil(e.OwnerID), trimOrNil(e.IP), trimOrNil(e.UserAgent), metaVal)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
