// Package telemetry exposes Prometheus metrics for evaluation passes.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

var (
	// passTotal counts per-submission passes by the action taken.
	passTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurojudge_pass_total",
		Help: "Submission passes by action",
	}, []string{"action"})

	// phaseTotal counts validation and execution outcomes.
	phaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurojudge_phase_total",
		Help: "Validation and execution outcomes",
	}, []string{"phase", "outcome"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neurojudge_phase_duration_seconds",
		Help:    "Validation and execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
	}, []string{"phase"})

	datasetScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "neurojudge_last_overall_score",
		Help: "Overall score of the last successful execution by metric",
	}, []string{"metric"})

	loopTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neurojudge_loop_iterations_total",
		Help: "Polling loop iterations by result",
	}, []string{"result"})
)

// ObservePass records that a pass took action.
func ObservePass(action string) {
	passTotal.WithLabelValues(action).Inc()
}

// ObservePhase records a phase outcome and its duration.
func ObservePhase(phase, outcome string, seconds float64) {
	phaseTotal.WithLabelValues(phase, outcome).Inc()
	phaseDuration.WithLabelValues(phase).Observe(seconds)
}

// ObserveScore records the overall value of a metric.
func ObserveScore(metric string, value float64) {
	datasetScore.WithLabelValues(metric).Set(value)
}

// ObserveLoop records one polling iteration.
func ObserveLoop(result string) {
	loopTotal.WithLabelValues(result).Inc()
}
