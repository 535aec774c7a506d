// Package orchestrator issues generation requests against a primary and a
// secondary provider with per-user rate limiting, retries, circuit breaking
// and per-call timeouts.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/provider"
	"github.com/Proton-105/horoscope-bot/internal/ratelimit"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/metrics"
)

// Role tells which configured target served a request.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 30 * time.Second

// Result is a successful generation.
type Result struct {
	Text     string
	Target   string
	Role     Role
	Attempts int
	Latency  time.Duration
}

// Config tunes the orchestrator.
type Config struct {
	MinInterval      time.Duration
	Timeout          time.Duration
	Retry            apperrors.RetryPolicy
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// ConfigFrom converts the generation section of the application config.
func ConfigFrom(cfg config.GenerationConfig) Config {
	retry := apperrors.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		retry.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		retry.MaxDelay = cfg.MaxDelay
	}
	if cfg.Backoff != "" {
		retry.Strategy = apperrors.BackoffStrategy(cfg.Backoff)
	}

	return Config{
		MinInterval:      cfg.MinInterval,
		Timeout:          cfg.Timeout,
		Retry:            retry,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}
}

// MaxDuration bounds one Generate call: every primary attempt with its
// backoff, then the single secondary attempt. Rate-limit waits are excluded.
func (c Config) MaxDuration() time.Duration {
	attempts := max(c.Retry.MaxAttempts, 1)
	total := c.Timeout * time.Duration(attempts+1)
	for i := 1; i < attempts; i++ {
		total += c.Retry.Delay(i)
	}
	return total
}

type target struct {
	role     Role
	provider provider.Provider
	breaker  *apperrors.CircuitBreaker
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	primary   *target
	secondary *target
	limiter   ratelimit.Limiter
	cfg       Config
	clock     clock.Clock
	log       *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for backoff and breakers.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// New wires an orchestrator. secondary and limiter may be nil.
func New(primary, secondary provider.Provider, limiter ratelimit.Limiter, cfg Config, log *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if primary == nil {
		return nil, errors.New("orchestrator: primary provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = apperrors.DefaultMaxAttempts
	}

	o := &Orchestrator{
		limiter: limiter,
		cfg:     cfg,
		clock:   clock.Real{},
		log:     log.With(slog.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.primary = o.newTarget(RolePrimary, primary)
	if secondary != nil {
		o.secondary = o.newTarget(RoleSecondary, secondary)
	}

	return o, nil
}

func (o *Orchestrator) newTarget(role Role, p provider.Provider) *target {
	name := p.Name()
	breaker := apperrors.NewCircuitBreaker(
		o.cfg.BreakerThreshold,
		o.cfg.BreakerCooldown,
		apperrors.WithClock(o.clock),
		apperrors.WithStateChange(func(from, to apperrors.State) {
			metrics.SetBreakerState(name, int(to))
			o.log.Warn("circuit breaker state changed",
				slog.String("target", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
	)
	metrics.SetBreakerState(name, int(apperrors.StateClosed))

	return &target{role: role, provider: p, breaker: breaker}
}

type generateOptions struct {
	skipRateLimit bool
}

// GenerateOption customizes a single Generate call.
type GenerateOption func(*generateOptions)

// WithoutRateLimit bypasses the per-user gate. The scheduled loop uses it.
func WithoutRateLimit() GenerateOption {
	return func(g *generateOptions) { g.skipRateLimit = true }
}

// BreakerStates reports the breaker state of each configured target.
func (o *Orchestrator) BreakerStates() map[string]apperrors.State {
	states := map[string]apperrors.State{o.primary.provider.Name(): o.primary.breaker.State()}
	if o.secondary != nil {
		states[o.secondary.provider.Name()] = o.secondary.breaker.State()
	}
	return states
}

// Generate produces text for prompt on behalf of p.
//
// The primary target gets up to Retry.MaxAttempts attempts on transient
// failures, then the secondary gets exactly one. Non-transient failures are
// returned at once. A rejected rate-limit check makes no provider call.
func (o *Orchestrator) Generate(ctx context.Context, prompt provider.Prompt, p *domain.UserProfile, opts ...GenerateOption) (*Result, error) {
	var gopts generateOptions
	for _, opt := range opts {
		opt(&gopts)
	}

	if !gopts.skipRateLimit {
		if err := o.checkRateLimit(ctx, p); err != nil {
			metrics.RecordGenerationResult("rate_limited", "")
			return nil, err
		}
	}

	started := o.clock.Now()
	attempts := 0

	text, err := o.runPrimary(ctx, prompt, &attempts)
	if err == nil {
		return o.success(text, o.primary, attempts, started), nil
	}
	if !fallbackAllowed(err) || ctx.Err() != nil {
		metrics.RecordGenerationResult(resultLabel(err), "")
		return nil, err
	}

	if o.secondary == nil {
		metrics.RecordGenerationResult("failed", "")
		return nil, err
	}

	o.log.Warn("falling back to secondary target",
		slog.String("primary", o.primary.provider.Name()),
		slog.String("secondary", o.secondary.provider.Name()),
		slog.Int("attempts", attempts),
		slog.Any("error", err),
	)

	text, err = o.attempt(ctx, o.secondary, prompt)
	if err == nil {
		attempts++
		return o.success(text, o.secondary, attempts, started), nil
	}
	if !errors.Is(err, apperrors.ErrCircuitOpen) {
		attempts++
	}

	metrics.RecordGenerationResult(resultLabel(err), "")
	return nil, err
}

func (o *Orchestrator) success(text string, t *target, attempts int, started time.Time) *Result {
	metrics.RecordGenerationResult("success", string(t.role))
	return &Result{
		Text:     text,
		Target:   t.provider.Name(),
		Role:     t.role,
		Attempts: attempts,
		Latency:  o.clock.Now().Sub(started),
	}
}

func (o *Orchestrator) checkRateLimit(ctx context.Context, p *domain.UserProfile) error {
	if o.limiter == nil || o.cfg.MinInterval <= 0 || p == nil {
		return nil
	}

	key := ratelimit.GenerationKey(p.ID)
	res, err := o.limiter.Check(ctx, key, 1, o.cfg.MinInterval)
	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return apperrors.NewRateLimitError(key)
	case err != nil:
		o.log.Warn("rate limiter unavailable, allowing request", slog.String("key", key), slog.Any("error", err))
		return nil
	case res != nil && !res.Allowed:
		return apperrors.NewRateLimitError(key)
	}
	return nil
}

// runPrimary retries transient failures against the primary target.
func (o *Orchestrator) runPrimary(ctx context.Context, prompt provider.Prompt, attempts *int) (string, error) {
	var text string

	err := apperrors.WithRetry(ctx, o.clock, o.cfg.Retry, func(ctx context.Context) error {
		out, err := o.attempt(ctx, o.primary, prompt)
		if errors.Is(err, apperrors.ErrCircuitOpen) {
			// An open breaker ends the primary phase without consuming attempts.
			return &breakerOpenError{err: err}
		}
		*attempts++
		if err != nil {
			return err
		}
		text = out
		return nil
	})

	var openErr *breakerOpenError
	if errors.As(err, &openErr) {
		return "", openErr.err
	}
	return text, err
}

// breakerOpenError hides the retryable cause from WithRetry so an open
// breaker ends the primary phase without backoff sleeps.
type breakerOpenError struct{ err error }

func (e *breakerOpenError) Error() string { return e.err.Error() }

// attempt performs one bounded call against t and classifies the failure.
func (o *Orchestrator) attempt(ctx context.Context, t *target, prompt provider.Prompt) (string, error) {
	name := t.provider.Name()

	if err := t.breaker.Allow(); err != nil {
		metrics.RecordGenerationAttempt(name, "circuit_open", 0)
		return "", apperrors.NewTransientProviderError(name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	start := o.clock.Now()
	text, err := t.provider.Generate(callCtx, prompt)
	latency := o.clock.Now().Sub(start)

	if err == nil {
		t.breaker.RecordSuccess()
		metrics.RecordGenerationAttempt(name, "success", latency)
		return text, nil
	}

	if ctx.Err() != nil {
		t.breaker.Release()
		metrics.RecordGenerationAttempt(name, "cancelled", latency)
		return "", fmt.Errorf("generate via %s: %w", name, ctx.Err())
	}

	kind := provider.KindOf(err)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		kind = provider.KindTimeout
	}

	metrics.RecordGenerationAttempt(name, "failure", latency)
	metrics.RecordGenerationFailure(name, string(kind))

	logAttrs := []any{
		slog.String("target", name),
		slog.String("kind", string(kind)),
		slog.Duration("latency", latency),
		slog.Any("error", err),
	}

	if kind.Transient() {
		t.breaker.RecordFailure()
		o.log.Warn("provider attempt failed", logAttrs...)
		return "", apperrors.NewTransientProviderError(name, err)
	}

	t.breaker.Release()
	o.log.Error("provider rejected request", logAttrs...)
	return "", apperrors.NewFatalProviderError(name, err)
}

func fallbackAllowed(err error) bool {
	return apperrors.Is(err, apperrors.KindTransientProvider)
}

func resultLabel(err error) string {
	switch apperrors.KindOf(err) {
	case apperrors.KindFatalProvider:
		return "fatal"
	case apperrors.KindTransientProvider:
		return "failed"
	default:
		return "cancelled"
	}
}
