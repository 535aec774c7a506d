package errors

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

// BackoffStrategy spaces consecutive retries.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    BackoffStrategy
}

// DefaultRetryPolicy returns three attempts spaced exponentially from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Strategy:    BackoffExponential,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.Strategy {
	case BackoffLinear:
		delay = p.BaseDelay * time.Duration(attempt)
	default:
		delay = time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Waiting honours ctx.
func WithRetry(ctx context.Context, clk clock.Clock, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if clk == nil {
		clk = clock.Real{}
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}

		if sleepErr := clock.Sleep(ctx, clk, policy.Delay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return err
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}
