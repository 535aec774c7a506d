package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/provider"
	"github.com/Proton-105/horoscope-bot/internal/ratelimit"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

// scriptedProvider replays a fixed sequence of results, repeating the last.
type scriptedProvider struct {
	name string

	mu      sync.Mutex
	calls   int
	results []error
	text    string
	block   bool
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, _ provider.Prompt) (string, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	var err error
	if len(p.results) > 0 {
		if idx >= len(p.results) {
			idx = len(p.results) - 1
		}
		err = p.results[idx]
	}
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return p.text, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// recordingClock returns immediately from After and remembers each delay.
type recordingClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
}

func (c *recordingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *recordingClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func transient(name string) error {
	return &provider.Error{Provider: name, Kind: provider.KindServer, Status: 503, Err: errors.New("unavailable")}
}

func fatal(name string) error {
	return &provider.Error{Provider: name, Kind: provider.KindAuth, Status: 401, Err: errors.New("bad key")}
}

func testConfig() Config {
	return Config{
		MinInterval: 2 * time.Second,
		Timeout:     time.Second,
		Retry: apperrors.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Strategy:    apperrors.BackoffExponential,
		},
		BreakerThreshold: 5,
		BreakerCooldown:  time.Minute,
	}
}

func newTestOrchestrator(t *testing.T, primary, secondary provider.Provider, limiter ratelimit.Limiter, cfg Config, clk clock.Clock) *Orchestrator {
	t.Helper()

	o, err := New(primary, secondary, limiter, cfg, logger.Discard(), WithClock(clk))
	require.NoError(t, err)
	return o
}

var testProfile = &domain.UserProfile{ID: 42, Name: "Ona", Language: domain.LanguageEN, Active: true}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "primary", text: "stars align", results: []error{transient("primary"), transient("primary"), nil}}
	secondary := &scriptedProvider{name: "secondary", text: "fallback"}
	clk := &recordingClock{now: time.Date(2025, 1, 1, 7, 30, 0, 0, time.UTC)}

	o := newTestOrchestrator(t, primary, secondary, nil, testConfig(), clk)

	res, err := o.Generate(context.Background(), provider.Prompt{User: "hi"}, testProfile)
	require.NoError(t, err)

	assert.Equal(t, "stars align", res.Text)
	assert.Equal(t, RolePrimary, res.Role)
	assert.Equal(t, "primary", res.Target)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Delays())
}

func TestGenerateLinearBackoff(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary")}}
	clk := &recordingClock{}

	cfg := testConfig()
	cfg.Retry.Strategy = apperrors.BackoffLinear
	o := newTestOrchestrator(t, primary, nil, nil, cfg, clk)

	_, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Delays())
}

func TestGenerateFallsBackOnce(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary")}}
	secondary := &scriptedProvider{name: "secondary", text: "from fallback"}

	o := newTestOrchestrator(t, primary, secondary, nil, testConfig(), &recordingClock{})

	res, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.NoError(t, err)

	assert.Equal(t, "from fallback", res.Text)
	assert.Equal(t, RoleSecondary, res.Role)
	assert.Equal(t, "secondary", res.Target)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestGenerateBothTargetsFail(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary")}}
	secondary := &scriptedProvider{name: "secondary", results: []error{transient("secondary")}}

	o := newTestOrchestrator(t, primary, secondary, nil, testConfig(), &recordingClock{})

	res, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientProvider))
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestGenerateFatalIsNotRetried(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{fatal("primary")}}
	secondary := &scriptedProvider{name: "secondary", text: "unused"}
	clk := &recordingClock{}

	o := newTestOrchestrator(t, primary, secondary, nil, testConfig(), clk)

	_, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindFatalProvider))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Empty(t, clk.Delays())
}

func TestGenerateRateLimited(t *testing.T) {
	primary := &scriptedProvider{name: "primary", text: "ok"}
	clk := clock.NewFake(time.Date(2025, 1, 1, 7, 30, 0, 0, time.UTC))
	limiter := ratelimit.NewMemoryLimiterWithClock(logger.Discard(), clk)

	o := newTestOrchestrator(t, primary, nil, limiter, testConfig(), clk)
	ctx := context.Background()

	_, err := o.Generate(ctx, provider.Prompt{}, testProfile)
	require.NoError(t, err)

	_, err = o.Generate(ctx, provider.Prompt{}, testProfile)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimited))
	assert.Equal(t, 1, primary.Calls())

	clk.Advance(time.Second)
	_, err = o.Generate(ctx, provider.Prompt{}, testProfile)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimited))

	// The rejected calls did not extend the interval.
	clk.Advance(time.Second + time.Millisecond)
	_, err = o.Generate(ctx, provider.Prompt{}, testProfile)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.Calls())

	other := &domain.UserProfile{ID: 7}
	_, err = o.Generate(ctx, provider.Prompt{}, other)
	require.NoError(t, err)
}

func TestGenerateWithoutRateLimit(t *testing.T) {
	primary := &scriptedProvider{name: "primary", text: "ok"}
	clk := clock.NewFake(time.Now())
	limiter := ratelimit.NewMemoryLimiterWithClock(logger.Discard(), clk)

	o := newTestOrchestrator(t, primary, nil, limiter, testConfig(), clk)

	for i := 0; i < 3; i++ {
		_, err := o.Generate(context.Background(), provider.Prompt{}, testProfile, WithoutRateLimit())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, primary.Calls())
}

func TestGenerateCircuitBreakerRoutesToFallback(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary")}}
	secondary := &scriptedProvider{name: "secondary", text: "fallback"}
	clk := &recordingClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	cfg := testConfig()
	cfg.BreakerThreshold = 3
	cfg.BreakerCooldown = time.Hour

	o := newTestOrchestrator(t, primary, secondary, nil, cfg, clk)

	_, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, apperrors.StateOpen, o.BreakerStates()["primary"])
	slept := clk.Delays()

	res, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.NoError(t, err)
	assert.Equal(t, RoleSecondary, res.Role)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, primary.Calls(), "open breaker must short-circuit the primary")
	assert.Equal(t, 2, secondary.Calls())
	assert.Equal(t, slept, clk.Delays(), "open breaker must not pay backoff")
}

func TestGenerateFailsFastWhenBothBreakersOpen(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary")}}
	secondary := &scriptedProvider{name: "secondary", results: []error{transient("secondary")}}
	clk := &recordingClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.BreakerThreshold = 1
	cfg.BreakerCooldown = time.Hour

	o := newTestOrchestrator(t, primary, secondary, nil, cfg, clk)

	_, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.Error(t, err)

	_, err = o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCircuitOpen))
	assert.True(t, apperrors.Is(err, apperrors.KindTransientProvider))
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestGenerateHalfOpenProbe(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary"), nil}, text: "recovered"}
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.BreakerThreshold = 1
	cfg.BreakerCooldown = time.Minute

	o := newTestOrchestrator(t, primary, nil, nil, cfg, clk)

	_, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.Error(t, err)

	_, err = o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Equal(t, 1, primary.Calls())

	clk.Advance(time.Minute)
	res, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Text)
	assert.Equal(t, apperrors.StateClosed, o.BreakerStates()["primary"])
}

func TestGenerateTimeoutIsTransient(t *testing.T) {
	primary := &scriptedProvider{name: "primary", block: true}
	secondary := &scriptedProvider{name: "secondary", text: "fast"}

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.Retry.MaxAttempts = 2

	o := newTestOrchestrator(t, primary, secondary, nil, cfg, &recordingClock{})

	res, err := o.Generate(context.Background(), provider.Prompt{}, testProfile)
	require.NoError(t, err)
	assert.Equal(t, RoleSecondary, res.Role)
	assert.Equal(t, 2, primary.Calls())
}

func TestGenerateHonoursCancellation(t *testing.T) {
	primary := &scriptedProvider{name: "primary", results: []error{transient("primary")}}
	secondary := &scriptedProvider{name: "secondary", text: "unused"}
	clk := clock.NewFake(time.Now())

	o := newTestOrchestrator(t, primary, secondary, nil, testConfig(), clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Generate(ctx, provider.Prompt{}, testProfile)
		done <- err
	}()

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("generate did not return after cancellation")
	}
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(configFixture())
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, apperrors.BackoffLinear, cfg.Retry.Strategy)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestConfigMaxDuration(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GenerationConfig
		want time.Duration
	}{
		{
			// 5 attempts of 10s plus 0.5s, 1s and 1.5s of backoff.
			name: "linear",
			cfg:  configFixture(),
			want: 53 * time.Second,
		},
		{
			// 4 attempts of 30s plus 1s and 2s of backoff.
			name: "exponential defaults",
			cfg:  config.GenerationConfig{Timeout: 30 * time.Second},
			want: 123 * time.Second,
		},
		{
			name: "capped backoff",
			cfg: config.GenerationConfig{
				MaxAttempts: 3,
				BaseDelay:   10 * time.Second,
				MaxDelay:    15 * time.Second,
				Timeout:     time.Second,
			},
			want: 4*time.Second + 10*time.Second + 15*time.Second,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ConfigFrom(tc.cfg).MaxDuration())
		})
	}
}

func TestNewRequiresPrimary(t *testing.T) {
	_, err := New(nil, nil, nil, testConfig(), nil)
	assert.Error(t, err)
}
