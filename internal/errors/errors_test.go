package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("generate: %w", NewTransientProviderError("openai", io.ErrUnexpectedEOF))

	assert.Equal(t, KindTransientProvider, KindOf(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, stdErrors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, Kind(""), KindOf(io.EOF))
	assert.False(t, Is(nil, KindValidation))
}

func TestRetryPolicyDelay(t *testing.T) {
	exp := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Strategy: BackoffExponential}
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 4*time.Second, exp.Delay(3))
	assert.Equal(t, 5*time.Second, exp.Delay(4))

	lin := RetryPolicy{BaseDelay: time.Second, Strategy: BackoffLinear}
	assert.Equal(t, 3*time.Second, lin.Delay(3))
	assert.Equal(t, time.Duration(0), lin.Delay(0))
}

func TestWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	t.Run("retries transient until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), clock.Real{}, policy, func(context.Context) error {
			calls++
			if calls < 3 {
				return NewTransportError("send", io.ErrUnexpectedEOF)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), clock.Real{}, policy, func(context.Context) error {
			calls++
			return NewValidationError("bad")
		})
		assert.True(t, Is(err, KindValidation))
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), clock.Real{}, policy, func(context.Context) error {
			calls++
			return NewTransportError("send", io.ErrUnexpectedEOF)
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("honours cancellation while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		fake := clock.NewFake(time.Now())
		err := WithRetry(ctx, fake, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context) error {
			cancel()
			return NewTransportError("send", io.ErrUnexpectedEOF)
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCircuitBreaker(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)

	var transitions []string
	cb := NewCircuitBreaker(3, time.Minute, WithClock(fake), WithStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	failing := func() error { return io.ErrUnexpectedEOF }

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Call(failing), io.ErrUnexpectedEOF)
	}
	assert.Equal(t, StateClosed, cb.State())

	require.NoError(t, cb.Call(func() error { return nil }))
	for i := 0; i < 3; i++ {
		_ = cb.Call(failing)
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	fake.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Allow())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen, "only one probe at a time")
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	fake.Advance(time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{
		"closed->open",
		"open->half_open",
		"half_open->open",
		"open->half_open",
		"half_open->closed",
	}, transitions)
}

func TestHandlerMapsKinds(t *testing.T) {
	h := NewHandler(testLogger(), false)
	ctx := context.Background()

	msg, retry := h.Handle(ctx, NewRateLimitError("generate:1"))
	assert.Equal(t, MsgRateLimited, msg)
	assert.False(t, retry)

	msg, retry = h.Handle(ctx, NewTransientProviderError("openai", io.EOF))
	assert.Equal(t, MsgTryAgainShortly, msg)
	assert.True(t, retry)

	msg, _ = h.Handle(ctx, NewFatalProviderError("openai", io.EOF))
	assert.Equal(t, MsgGeneric, msg)

	msg, _ = h.Handle(ctx, io.EOF)
	assert.Equal(t, MsgGeneric, msg)

	msg, retry = h.Handle(ctx, context.DeadlineExceeded)
	assert.Equal(t, MsgTryAgainShortly, msg)
	assert.True(t, retry)

	msg, _ = h.Handle(ctx, nil)
	assert.Empty(t, msg)
}
