package govmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the aggregated governance events onto Prometheus for
// live observability. The durable counters live in the Store; these
// collectors only track what this process has seen.
type Metrics struct {
	decisionsTotal  *prometheus.CounterVec
	overridesTotal  *prometheus.CounterVec
	signalsTotal    *prometheus.CounterVec
	duplicateEvents prometheus.Counter
}

// NewMetrics creates and registers governance metrics with the provided
// registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provost",
				Subsystem: "governance",
				Name:      "decisions_finalized_total",
				Help:      "Total number of finalized decisions aggregated",
			},
			[]string{"result"},
		),

		overridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provost",
				Subsystem: "governance",
				Name:      "overrides_resolved_total",
				Help:      "Total number of resolved overrides aggregated",
			},
			[]string{"status"},
		),

		signalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provost",
				Subsystem: "governance",
				Name:      "signals_total",
				Help:      "Total number of derived governance signals",
			},
			[]string{"type", "level"},
		),

		duplicateEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "provost",
				Subsystem: "governance",
				Name:      "duplicate_events_total",
				Help:      "Total number of replayed events dropped by the dedup ledger",
			},
		),
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.overridesTotal,
		m.signalsTotal,
		m.duplicateEvents,
	)

	return m
}

func (m *Metrics) recordDecision(result string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordOverride(status string) {
	if m == nil {
		return
	}
	m.overridesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) recordSignal(signalType, level string) {
	if m == nil {
		return
	}
	m.signalsTotal.WithLabelValues(signalType, level).Inc()
}

func (m *Metrics) recordDuplicate() {
	if m == nil {
		return
	}
	m.duplicateEvents.Inc()
}
