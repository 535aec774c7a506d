package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_attempts_total",
			Help: "Provider calls by target and outcome",
		},
		[]string{"target", "outcome"},
	)
	generationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_failures_total",
			Help: "Provider failures by target and category",
		},
		[]string{"target", "category"},
	)
	generationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_requests_total",
			Help: "Generate requests by final result and serving role",
		},
		[]string{"result", "role"},
	)
	generationLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_latency_seconds",
			Help:    "Latency of single provider calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"target"},
	)
	breakerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "generation_breaker_state",
			Help: "Circuit breaker state per target (0 closed, 1 open, 2 half-open)",
		},
		[]string{"target"},
	)
	deliveryOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_outcomes_total",
			Help: "Scheduled delivery outcomes per profile",
		},
		[]string{"outcome"},
	)
	deliveryRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_run_duration_seconds",
			Help:    "Duration of a full delivery run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)

// RecordGenerationAttempt tracks one provider call.
func RecordGenerationAttempt(target, outcome string, latency time.Duration) {
	generationAttemptsTotal.WithLabelValues(target, outcome).Inc()
	generationLatencySeconds.WithLabelValues(target).Observe(latency.Seconds())
}

// RecordGenerationFailure tracks a failed provider call by category.
func RecordGenerationFailure(target, category string) {
	generationFailuresTotal.WithLabelValues(target, category).Inc()
}

// RecordGenerationResult tracks the final result of a generate request.
func RecordGenerationResult(result, role string) {
	if role == "" {
		role = "none"
	}
	generationRequestsTotal.WithLabelValues(result, role).Inc()
}

// SetBreakerState publishes a breaker state.
func SetBreakerState(target string, state int) {
	breakerStateGauge.WithLabelValues(target).Set(float64(state))
}

// RecordDeliveryOutcome counts one profile outcome of a delivery run.
func RecordDeliveryOutcome(outcome string) {
	deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDeliveryRun records the duration of a completed run.
func ObserveDeliveryRun(d time.Duration) {
	deliveryRunDuration.Observe(d.Seconds())
}
