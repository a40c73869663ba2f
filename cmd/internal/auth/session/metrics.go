package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	reuse         prometheus.Counter
	sweepDeleted  prometheus.Counter
	sweepFailures prometheus.Counter
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh rotations by result.",
		}, []string{"result"}),
		reuse: f.NewCounter(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "auth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Revoked refresh credentials presented again.",
		}),
		sweepDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "auth",
			Name:      "sweep_deleted_total",
			Help:      "Expired refresh credentials deleted by the cleanup sweep.",
		}),
		sweepFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "auth",
			Name:      "sweep_failures_total",
			Help:      "Cleanup sweep runs that failed.",
		}),
	}
}

func (m *Metrics) login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) reuseDetected() {
	if m == nil {
		return
	}
	m.reuse.Inc()
}

func (m *Metrics) swept(n int64) {
	if m == nil {
		return
	}
	m.sweepDeleted.Add(float64(n))
}

func (m *Metrics) sweepFailed() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}
