// Package metrics provides Prometheus instrumentation for the decider.
//
// Metrics exposed:
//   - poseidon_decider_decisions_total: Counter of emitted records by behavior, investigate and valid
//   - poseidon_decider_degradations_total: Counter of soft fallbacks by reason
//   - poseidon_decider_precondition_failures_total: Counter of runs skipped on address mismatch
//   - poseidon_decider_history_gap_seconds: Histogram of time since the previous observation
//   - poseidon_decider_publish_seconds: Histogram of publish duration by sink
//   - poseidon_decider_errors_total: Counter of errors by component and reason
//
// Metrics are registered on the Registerer given to New, so `serve` can expose
// them on /metrics and `run` can push them to a Pushgateway.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Degradation reasons.
const (
	ReasonNoHistory     = "no_history"
	ReasonUnresolvedKey = "unresolved_key"
	ReasonFieldDecode   = "field_decode"
	ReasonStoreError    = "store_error"
	ReasonNoLabels      = "no_labels"
)

// Metrics holds all Prometheus metrics for the decider.
type Metrics struct {
	DecisionsTotal            *prometheus.CounterVec
	DegradationsTotal         *prometheus.CounterVec
	PreconditionFailuresTotal prometheus.Counter
	HistoryGapSeconds         prometheus.Histogram
	PublishSeconds            *prometheus.HistogramVec
	ErrorsTotal               *prometheus.CounterVec
}

// New creates the decider metrics and registers them on reg.
// A nil reg returns metrics that are not registered anywhere.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poseidon_decider_decisions_total",
			Help: "Decision records emitted",
		}, []string{"behavior", "investigate", "valid"}),

		DegradationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poseidon_decider_degradations_total",
			Help: "Soft fallbacks taken while building a decision",
		}, []string{"reason"}),

		PreconditionFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "poseidon_decider_precondition_failures_total",
			Help: "Runs skipped because the resolved address did not match the capture source",
		}),

		HistoryGapSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "poseidon_decider_history_gap_seconds",
			Help: "Time between the current and the previous observation",
			// 1m .. ~45d
			Buckets: prometheus.ExponentialBuckets(60, 4, 10),
		}),

		PublishSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "poseidon_decider_publish_seconds",
			Help:    "Time spent publishing a decision record",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poseidon_decider_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordDecision counts an emitted record.
func (m *Metrics) RecordDecision(behavior string, investigate, valid bool) {
	m.DecisionsTotal.WithLabelValues(behavior, strconv.FormatBool(investigate), strconv.FormatBool(valid)).Inc()
}

// RecordDegradation counts a soft fallback.
func (m *Metrics) RecordDegradation(reason string) {
	m.DegradationsTotal.WithLabelValues(reason).Inc()
}

// RecordPreconditionFailure counts a skipped run.
func (m *Metrics) RecordPreconditionFailure() {
	m.PreconditionFailuresTotal.Inc()
}

// RecordHistoryGap records the gap to the previous observation.
func (m *Metrics) RecordHistoryGap(seconds float64) {
	m.HistoryGapSeconds.Observe(seconds)
}

// RecordPublish records the time spent publishing on sink.
func (m *Metrics) RecordPublish(sink string, seconds float64) {
	m.PublishSeconds.WithLabelValues(sink).Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
