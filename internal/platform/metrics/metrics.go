package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification engine.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	StaleStateConflicts prometheus.Counter
	AuditRetries        prometheus.Counter
	AuditExhausted      prometheus.Counter
	PendingQueueDepth   *prometheus.GaugeVec
	ApplyDuration       *prometheus.HistogramVec
	RegistrationsTotal  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bountydesk_decisions_total",
			Help: "Committed verification decisions by kind and outcome",
		}, []string{"kind", "outcome"}),
		StaleStateConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bountydesk_decision_stale_state_total",
			Help: "Decisions rejected because a concurrent decision won the race",
		}),
		AuditRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bountydesk_audit_append_retries_total",
			Help: "Audit append attempts beyond the first",
		}),
		AuditExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bountydesk_audit_append_exhausted_total",
			Help: "Decisions whose audit append failed after all retries; alerts page on this",
		}),
		PendingQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bountydesk_pending_queue_depth",
			Help: "Records currently awaiting a decision, by kind",
		}, []string{"kind"}),
		ApplyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bountydesk_apply_duration_seconds",
			Help:    "Latency of decision apply, commit through audit ack",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		RegistrationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bountydesk_registrations_total",
			Help: "Accounts registered and placed in the approval queue",
		}),
	}
}

// ObserveDecision records a committed decision.
func (m *Metrics) ObserveDecision(kind, outcome string, seconds float64) {
	m.DecisionsTotal.WithLabelValues(kind, outcome).Inc()
	m.ApplyDuration.WithLabelValues(kind).Observe(seconds)
}

// IncStaleState increments the lost-race counter.
func (m *Metrics) IncStaleState() {
	m.StaleStateConflicts.Inc()
}

// IncAuditRetry increments the audit retry counter.
func (m *Metrics) IncAuditRetry() {
	m.AuditRetries.Inc()
}

// IncAuditExhausted increments the audit retry exhaustion counter.
func (m *Metrics) IncAuditExhausted() {
	m.AuditExhausted.Inc()
}

// SetPendingDepth records the current queue depth for a kind.
func (m *Metrics) SetPendingDepth(kind string, depth int) {
	m.PendingQueueDepth.WithLabelValues(kind).Set(float64(depth))
}
