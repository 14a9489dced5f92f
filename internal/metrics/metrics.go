// Package metrics holds the engine's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cascadeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socrates_cascade_duration_seconds",
		Help:    "Duration of a specification write cascade by operation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op", "outcome"})

	conflictsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_conflicts_opened_total",
		Help: "Conflicts opened by type and severity",
	}, []string{"type", "severity"})

	conflictsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_conflicts_closed_total",
		Help: "Conflicts closed by final status",
	}, []string{"status"})

	classifierFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_classifier_fallbacks_total",
		Help: "Scans that fell back to rule-only contradiction detection",
	}, []string{"reason"})

	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_gate_decisions_total",
		Help: "Phase gate evaluations by target phase and result",
	}, []string{"target", "result"})

	unanalyzedSpecs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socrates_unanalyzed_specifications_total",
		Help: "Specifications stored with the unanalyzed flag",
	})

	rulesReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socrates_rules_reloads_total",
		Help: "Rule table reloads by outcome",
	}, []string{"outcome"})
)

// ObserveCascade records how long a write cascade took.
func ObserveCascade(op string, start time.Time, err error) {
	cascadeDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
}

// ConflictOpened counts a newly stored conflict.
func ConflictOpened(conflictType, severity string) {
	conflictsOpened.WithLabelValues(conflictType, severity).Inc()
}

// ConflictClosed counts a resolution or override.
func ConflictClosed(status string) {
	conflictsClosed.WithLabelValues(status).Inc()
}

// ClassifierFallback counts a scan that stopped using the classifier.
func ClassifierFallback(reason string) {
	classifierFallbacks.WithLabelValues(reason).Inc()
}

// GateDecision counts a gate evaluation.
func GateDecision(target string, allowed bool) {
	result := "blocked"
	if allowed {
		result = "allowed"
	}
	gateDecisions.WithLabelValues(target, result).Inc()
}

// UnanalyzedSpec counts a specification the analyzer could not read.
func UnanalyzedSpec() {
	unanalyzedSpecs.Inc()
}

// RulesReloaded counts a rule table reload attempt.
func RulesReloaded(err error) {
	rulesReloads.WithLabelValues(outcome(err)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
