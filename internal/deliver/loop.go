package deliver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/repository"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/pkg/metrics"
)

// Status is the per-profile result of a run.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Trigger names what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerCatchUp  Trigger = "catch_up"
	TriggerManual   Trigger = "manual"
	TriggerQueue    Trigger = "queue"
)

// Outcome is the result for one profile.
type Outcome struct {
	UserID   int64         `json:"user_id"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Target   string        `json:"target,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes a run.
type Report struct {
	RunID      string        `json:"run_id"`
	Window     domain.Window `json:"window"`
	Trigger    Trigger       `json:"trigger"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcomes   []Outcome     `json:"outcomes"`
	Delivered  int           `json:"delivered"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
}

// Config tunes the loop.
type Config struct {
	Concurrency int
	// SendRate caps outgoing messages per second; zero disables pacing.
	SendRate float64
	Location *time.Location
}

// Loop delivers one window to every eligible profile.
type Loop struct {
	profiles repository.ProfileStore
	runs     repository.RunStore
	gen      Generator
	prompts  PromptBuilder
	sender   Sender
	locker   state.Locker
	limiter  *rate.Limiter
	cfg      Config
	clock    clock.Clock
	log      *slog.Logger
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithRunStore records every finished run.
func WithRunStore(runs repository.RunStore) LoopOption {
	return func(l *Loop) { l.runs = runs }
}

// WithLoopClock overrides the time source.
func WithLoopClock(c clock.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// NewLoop wires a delivery loop.
func NewLoop(
	profiles repository.ProfileStore,
	gen Generator,
	prompts PromptBuilder,
	sender Sender,
	locker state.Locker,
	cfg Config,
	log *slog.Logger,
	opts ...LoopOption,
) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if locker == nil {
		locker = state.NewLocalLocker()
	}
	if log == nil {
		log = slog.Default()
	}

	l := &Loop{
		profiles: profiles,
		gen:      gen,
		prompts:  prompts,
		sender:   sender,
		locker:   locker,
		cfg:      cfg,
		clock:    clock.Real{},
		log:      log.With(slog.String("component", "delivery")),
	}
	if cfg.SendRate > 0 {
		burst := int(cfg.SendRate)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the delivery time zone.
func (l *Loop) Location() *time.Location { return l.cfg.Location }

// CurrentWindow returns the window containing now.
func (l *Loop) CurrentWindow() domain.Window {
	return domain.WindowOf(l.clock.Now(), l.cfg.Location)
}

// RunOption customizes a single run.
type RunOption func(*Report)

// Triggered labels the run with what started it. Runs default to manual.
func Triggered(t Trigger) RunOption {
	return func(r *Report) { r.Trigger = t }
}

// Run delivers w to every eligible profile. Per-profile failures are
// recorded in the report and never abort the batch; the returned error is
// set only when the run could not start or ctx ended it early.
func (l *Loop) Run(ctx context.Context, w domain.Window, opts ...RunOption) (*Report, error) {
	day, err := w.Start(l.cfg.Location)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Window:    w,
		Trigger:   TriggerManual,
		StartedAt: l.clock.Now(),
	}
	for _, opt := range opts {
		opt(report)
	}
	log := l.log.With(
		slog.String("run_id", report.RunID),
		slog.String("window", w.String()),
		slog.String("trigger", string(report.Trigger)),
	)

	eligible, err := l.profiles.ListEligibleForWindow(ctx, w)
	if err != nil {
		log.Error("failed to list eligible profiles", slog.Any("error", err))
		return nil, apperrors.NewPersistenceError("list eligible profiles", err)
	}

	log.Info("delivery run started", slog.Int("eligible", len(eligible)))

	outcomes := make([]Outcome, len(eligible))

	var g errgroup.Group
	g.SetLimit(l.cfg.Concurrency)
	for i, p := range eligible {
		i, p := i, p
		g.Go(func() error {
			outcomes[i] = l.deliverOne(ctx, log, p.ID, w, day)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	report.FinishedAt = l.clock.Now()
	for _, o := range outcomes {
		switch o.Status {
		case StatusDelivered:
			report.Delivered++
		case StatusSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		metrics.RecordDeliveryOutcome(string(o.Status))
	}
	metrics.ObserveDeliveryRun(report.FinishedAt.Sub(report.StartedAt))

	log.Info("delivery run finished",
		slog.Int("delivered", report.Delivered),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)

	if l.runs != nil {
		// The run already happened; a lost history row must not fail it.
		recordCtx := context.WithoutCancel(ctx)
		if err := l.runs.Record(recordCtx, repository.RunRecord{
			RunID:      report.RunID,
			Window:     w,
			Trigger:    string(report.Trigger),
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			Delivered:  report.Delivered,
			Skipped:    report.Skipped,
			Failed:     report.Failed,
		}); err != nil {
			log.Warn("failed to record delivery run", slog.Any("error", err))
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (l *Loop) deliverOne(ctx context.Context, log *slog.Logger, userID int64, w domain.Window, day time.Time) Outcome {
	started := l.clock.Now()
	out := Outcome{UserID: userID}
	finish := func(status Status, reason string) Outcome {
		out.Status = status
		out.Reason = reason
		out.Duration = l.clock.Now().Sub(started)
		return out
	}

	if ctx.Err() != nil {
		return finish(StatusFailed, "cancelled")
	}

	unlock, err := l.locker.Lock(ctx, DeliveryLockKey(userID))
	if err != nil {
		log.Warn("delivery lock unavailable", slog.Int64("user_id", userID), slog.Any("error", err))
		return finish(StatusFailed, "locked")
	}
	defer unlock()

	p, err := reloadProfile(ctx, l.profiles, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return finish(StatusSkipped, "profile_missing")
	}
	if err != nil {
		log.Error("failed to reload profile", slog.Int64("user_id", userID), slog.Any("error", err))
		return finish(StatusFailed, "load")
	}
	if !p.Active {
		return finish(StatusSkipped, "inactive")
	}
	if p.DeliveredIn(w) {
		return finish(StatusSkipped, "already_delivered")
	}

	prompt, err := l.prompts.Build(p, day)
	if err != nil {
		log.Error("failed to build prompt", slog.Int64("user_id", userID), slog.Any("error", err))
		return finish(StatusFailed, "prompt")
	}

	res, err := l.gen.Generate(ctx, prompt, p, orchestrator.WithoutRateLimit())
	if err != nil {
		reason := string(apperrors.KindOf(err))
		if reason == "" {
			reason = "generate"
		}
		log.Warn("generation failed", slog.Int64("user_id", userID), slog.String("reason", reason), slog.Any("error", err))
		return finish(StatusFailed, reason)
	}
	out.Target = res.Target
	out.Attempts = res.Attempts

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return finish(StatusFailed, "cancelled")
		}
	}

	if err := l.sender.Send(ctx, userID, res.Text); err != nil {
		if errors.Is(err, ErrRecipientUnavailable) {
			if err := l.profiles.SetActive(ctx, userID, false); err != nil {
				log.Warn("failed to deactivate unreachable recipient", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			log.Info("recipient unavailable, delivery disabled", slog.Int64("user_id", userID))
			return finish(StatusFailed, "recipient_unavailable")
		}
		log.Warn("send failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return finish(StatusFailed, "send")
	}

	marked, err := markDelivered(ctx, l.profiles, userID, w)
	if err != nil {
		log.Error("delivered but failed to mark window", slog.Int64("user_id", userID), slog.Any("error", err))
		return finish(StatusFailed, "mark")
	}
	if !marked {
		log.Warn("window was already marked", slog.Int64("user_id", userID))
	}

	return finish(StatusDelivered, "")
}
