// Package metrics exposes Prometheus collectors for conversation rounds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "caspchat"

// Metrics groups the collectors updated by the round engine and dispatcher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	rounds         *prometheus.CounterVec
	roundDuration  prometheus.Histogram
	segments       *prometheus.CounterVec
	solverCalls    *prometheus.CounterVec
	solverDuration *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg, or with the default
// registerer when reg is nil. Registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "round",
				Name:      "total",
				Help:      "Conversation rounds by result.",
			},
			[]string{"result"},
		),
		roundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "round",
				Name:      "duration_seconds",
				Help:      "Wall time of a complete round, model call included.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
			},
		),
		segments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "segments_total",
				Help:      "Status segments seen by the readiness gate.",
			},
			[]string{"state"},
		),
		solverCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "solver",
				Name:      "calls_total",
				Help:      "Solver calls by result.",
			},
			[]string{"result"},
		),
		solverDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "solver",
				Name:      "call_duration_seconds",
				Help:      "Duration of individual solver calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "interpret",
				Name:      "outcomes_total",
				Help:      "Interpreted outcomes by topic and status.",
			},
			[]string{"topic", "status"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Live conversation sessions.",
			},
		),
	}
	reg.MustRegister(m.rounds, m.roundDuration, m.segments, m.solverCalls, m.solverDuration, m.outcomes, m.sessionsActive)
	return m
}

// ObserveRound records a finished round.
func (m *Metrics) ObserveRound(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(result).Inc()
	m.roundDuration.Observe(d.Seconds())
}

// ObserveSegments counts ready and pending status segments.
func (m *Metrics) ObserveSegments(ready, pending int) {
	if m == nil {
		return
	}
	m.segments.WithLabelValues("ready").Add(float64(ready))
	m.segments.WithLabelValues("pending").Add(float64(pending))
}

// ObserveSolverCall records one solver call.
func (m *Metrics) ObserveSolverCall(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.solverCalls.WithLabelValues(result).Inc()
	m.solverDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveOutcome counts an interpreted outcome.
func (m *Metrics) ObserveOutcome(topic, status string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(topic, status).Inc()
}

// SetActiveSessions reports the number of live sessions.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
