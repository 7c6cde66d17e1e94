// Package metrics provides Prometheus metrics for the digest service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the digest service.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	PhaseTransitions     *prometheus.CounterVec
	MessagesScored       prometheus.Counter
	MessagesRejected     prometheus.Counter
	SummarizerFallbacks  prometheus.Counter
	DigestItems          *prometheus.HistogramVec
	ErrorsTotal          *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_runs_total",
				Help: "Total number of digest runs by status.",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "digest_run_duration_seconds",
				Help:    "Digest run duration.",
				Buckets: prometheus.DefBuckets,
			},
		),
		PhaseTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_phase_transitions_total",
				Help: "Phase transitions applied by the state machine, by from/to phase.",
			},
			[]string{"from", "to"},
		),
		MessagesScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_messages_scored_total",
				Help: "Messages that passed gating and received a relevance score.",
			},
		),
		MessagesRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_messages_rejected_total",
				Help: "Malformed messages rejected during ingestion or a run.",
			},
		),
		SummarizerFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "digest_summarizer_fallbacks_total",
				Help: "Review-group summaries that fell back to the deterministic text.",
			},
		),
		DigestItems: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "digest_items",
				Help:    "Items emitted per digest by section.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
			[]string{"section"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "digest_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RunsTotal)
	reg.MustRegister(m.RunDuration)
	reg.MustRegister(m.PhaseTransitions)
	reg.MustRegister(m.MessagesScored)
	reg.MustRegister(m.MessagesRejected)
	reg.MustRegister(m.SummarizerFallbacks)
	reg.MustRegister(m.DigestItems)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun increments the run counter.
func (m *Metrics) RecordRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordTransition increments the phase transition counter.
func (m *Metrics) RecordTransition(from, to string) {
	m.PhaseTransitions.WithLabelValues(from, to).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// ObserveRunDuration records run duration in seconds.
func (m *Metrics) ObserveRunDuration(seconds float64) {
	m.RunDuration.Observe(seconds)
}

// ObserveSectionItems records how many items a section emitted.
func (m *Metrics) ObserveSectionItems(section string, count int) {
	m.DigestItems.WithLabelValues(section).Observe(float64(count))
}
