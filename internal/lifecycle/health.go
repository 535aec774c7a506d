package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/horoscope-bot/internal/health"
)

// ErrShuttingDown is returned by Readiness once shutdown has begun.
var ErrShuttingDown = errors.New("shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes answers liveness from process state and readiness from the
// dependency checks.
type Probes struct {
	log      *slog.Logger
	checker  *health.Checker
	draining atomic.Bool
}

// NewProbes creates a new Probes instance.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, checker: checker}
}

// Drain makes Readiness fail so load balancers stop routing webhooks here.
func (p *Probes) Drain() {
	p.draining.Store(true)
}

// Liveness reports success while the process is running.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails while draining or when any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrShuttingDown
	}
	if p.checker == nil {
		return nil
	}

	report := p.checker.Check(ctx)
	if report.Healthy {
		return nil
	}

	failed := make([]string, 0, len(report.Components))
	for name, status := range report.Components {
		if status != health.StatusOK {
			failed = append(failed, fmt.Sprintf("%s: %s", name, status))
		}
	}
	sort.Strings(failed)
	p.log.Debug("readiness probe failed", slog.Int("failed", len(failed)))
	return errors.New(strings.Join(failed, "; "))
}

// Report exposes the per-component detail behind Readiness.
func (p *Probes) Report(ctx context.Context) health.Report {
	if p.checker == nil {
		return health.Report{Healthy: true, Components: map[string]string{}}
	}
	return p.checker.Check(ctx)
}
