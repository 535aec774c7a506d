package deliver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// Runner executes a delivery run. *Loop implements it.
type Runner interface {
	Run(ctx context.Context, w domain.Window, opts ...RunOption) (*Report, error)
}

// Supervisor triggers the loop once a day at a fixed wall-clock time.
type Supervisor struct {
	runner Runner
	clock  clock.Clock
	loc    *time.Location
	hour   int
	minute int
	log    *slog.Logger

	// mu keeps scheduled and manual runs from overlapping.
	mu sync.Mutex
}

// NewSupervisor creates a daily trigger firing at hour:minute in loc.
func NewSupervisor(runner Runner, clk clock.Clock, loc *time.Location, hour, minute int, log *slog.Logger) *Supervisor {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		runner: runner,
		clock:  clk,
		loc:    loc,
		hour:   hour,
		minute: minute,
		log:    log.With(slog.String("component", "delivery_supervisor")),
	}
}

// NextFire returns the first fire time strictly after now.
func NextFire(now time.Time, loc *time.Location, hour, minute int) time.Time {
	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !fire.After(local) {
		fire = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return fire
}

// Run blocks until ctx is done. When started after today's fire time it
// first catches up on the current window; runs are idempotent so a window
// delivered earlier yields only skips.
func (s *Supervisor) Run(ctx context.Context) error {
	now := s.clock.Now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !now.Before(today) {
		s.log.Info("running catch-up delivery", slog.String("window", domain.WindowOf(now, s.loc).String()))
		s.run(ctx, domain.WindowOf(now, s.loc), TriggerCatchUp)
	}

	for {
		now = s.clock.Now()
		next := NextFire(now, s.loc, s.hour, s.minute)
		s.log.Debug("next delivery scheduled", slog.Time("at", next))

		if err := clock.Sleep(ctx, s.clock, next.Sub(now)); err != nil {
			return nil
		}

		s.run(ctx, domain.WindowOf(next, s.loc), TriggerSchedule)
	}
}

// RunNow runs the loop for w immediately, waiting for any run in progress.
func (s *Supervisor) RunNow(ctx context.Context, w domain.Window) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Run(ctx, w, Triggered(TriggerManual))
}

func (s *Supervisor) run(ctx context.Context, w domain.Window, trigger Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.runner.Run(ctx, w, Triggered(trigger)); err != nil {
		s.log.Error("delivery run failed", slog.String("window", w.String()), slog.Any("error", err))
	}
}
