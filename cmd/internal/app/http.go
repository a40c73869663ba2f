package app

import (
	"net/http"
	"time"

	"folio/cmd/internal/auth/api"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routes struct {
	log       Logger
	cfg       Config
	dbPool    *pgxpool.Pool
	dbEnabled bool
	gatherer  prometheus.Gatherer
	auth      *api.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && !rt.dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if rt.dbEnabled && rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	if rt.auth != nil {
		rt.auth.Register(mux)
	}
}

// handler wraps mux with the cross-cutting middleware, outermost first.
func handler(mux http.Handler, cfg Config, log Logger) http.Handler {
	h := WithSecurityHeaders(mux)
	h = WithCORS(h, cfg, log)
	return WithRequestLogging(h, log)
}
