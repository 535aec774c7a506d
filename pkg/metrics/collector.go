package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/horoscope-bot/internal/state"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_transitions_total",
			Help: "Total number of registration state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by kind and severity",
		},
		[]string{"kind", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registration_sessions_active",
			Help: "Current number of registration sessions in progress",
		},
	)
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registration_sessions_by_state",
			Help: "Number of registration sessions per state",
		},
		[]string{"state"},
	)
)

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks registration transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(kind, severity string) {
	if kind == "" {
		kind = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(kind, severity).Inc()
}

// SessionLister exposes in-progress sessions.
type SessionLister interface {
	Sessions(ctx context.Context) ([]*state.Session, error)
}

// StateCollector periodically gathers session counts and emits gauge metrics.
type StateCollector struct {
	sessions SessionLister
	interval time.Duration
}

// NewStateCollector builds a metrics collector bound to the provided session source.
func NewStateCollector(sessions SessionLister, interval time.Duration) *StateCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StateCollector{sessions: sessions, interval: interval}
}

// Run polls sessions until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.sessions == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	sessions, err := c.sessions.Sessions(ctx)
	if err != nil {
		return err
	}

	activeSessions.Set(float64(len(sessions)))

	counts := make(map[state.State]int, len(state.RegistrationStates))
	for _, s := range sessions {
		if s != nil {
			counts[s.Step]++
		}
	}

	for _, st := range state.RegistrationStates {
		sessionsByState.WithLabelValues(string(st)).Set(float64(counts[st]))
	}

	return nil
}
