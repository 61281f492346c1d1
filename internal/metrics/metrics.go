// Package metrics exposes Prometheus collectors for the grading pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autograder"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	responsesGraded  *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	attemptsTriaged  *prometheus.CounterVec
	finalizations    *prometheus.CounterVec
}

// MustNew constructs Metrics and registers them with reg, panicking on
// duplicate registration. A nil reg means the default registerer.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		responsesGraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grading",
			Name:      "responses_total",
			Help:      "Responses graded, by the path that produced the grade.",
		}, []string{"source"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "fallbacks_total",
			Help:      "Open responses scored by the local heuristic, by reason.",
		}, []string{"reason"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "external_call_duration_seconds",
			Help:      "Latency of semantic-analysis calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"outcome"}),
		attemptsTriaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grading",
			Name:      "attempts_triaged_total",
			Help:      "Attempts routed to review, by priority.",
		}, []string{"priority"}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "finalizations_total",
			Help:      "Review decisions, by action and result.",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(m.responsesGraded, m.fallbacks, m.analysisDuration, m.attemptsTriaged, m.finalizations)
	return m
}

// ResponseGraded counts one graded response.
func (m *Metrics) ResponseGraded(source string) {
	if m == nil {
		return
	}
	m.responsesGraded.WithLabelValues(source).Inc()
}

// Fallback counts one fallback-scored response.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// AnalysisCall observes one external call.
func (m *Metrics) AnalysisCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AttemptTriaged counts one attempt routed to review.
func (m *Metrics) AttemptTriaged(priority string) {
	if m == nil {
		return
	}
	m.attemptsTriaged.WithLabelValues(priority).Inc()
}

// Finalization counts one confirm or adjust.
func (m *Metrics) Finalization(action, result string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(action, result).Inc()
}
