package deliver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/repository"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

func newTestService(store repository.ProfileStore, gen *fakeGenerator, sender Sender, locker state.Locker, policy Policy) *Service {
	clk := clock.NewFake(time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC))
	return NewService(store, gen, stubPrompts{}, sender, locker, policy, time.UTC, clk, logger.Discard())
}

func TestRequestNowAlwaysPolicy(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	gen := newFakeGenerator()
	sender := newFakeSender()
	svc := newTestService(store, gen, sender, nil, PolicyAlways)
	ctx := context.Background()

	res, err := svc.RequestNow(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Ana")
	assert.Equal(t, 1, sender.count(1))
	assert.Equal(t, []int{0}, gen.opts, "on-demand requests keep the rate gate")
	assert.Nil(t, store.profile(1).LastDeliveryDate, "always policy leaves the window untouched")

	_, err = svc.RequestNow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, sender.count(1))
}

func TestRequestNowOncePerWindow(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	sender := newFakeSender()
	svc := newTestService(store, newFakeGenerator(), sender, nil, PolicyOncePerWindow)
	ctx := context.Background()

	_, err := svc.RequestNow(ctx, 1)
	require.NoError(t, err)

	p := store.profile(1)
	require.NotNil(t, p.LastDeliveryDate)
	assert.Equal(t, domain.Window("2025-06-02"), *p.LastDeliveryDate)

	_, err = svc.RequestNow(ctx, 1)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	assert.Equal(t, 1, sender.count(1))
}

func TestRequestNowUnknownUser(t *testing.T) {
	svc := newTestService(newMemStore(), newFakeGenerator(), newFakeSender(), nil, PolicyAlways)
	_, err := svc.RequestNow(context.Background(), 9)
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestRequestNowPropagatesGenerationError(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	gen := newFakeGenerator()
	gen.fail[1] = apperrors.NewRateLimitError("generate:1")
	sender := newFakeSender()

	_, err := newTestService(store, gen, sender, nil, PolicyAlways).RequestNow(context.Background(), 1)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimited))
	assert.Zero(t, sender.total())
}

func TestRequestNowSendFailure(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	sender := newFakeSender()
	sender.fail[1] = ErrRecipientUnavailable

	_, err := newTestService(store, newFakeGenerator(), sender, nil, PolicyOncePerWindow).RequestNow(context.Background(), 1)
	assert.True(t, apperrors.Is(err, apperrors.KindTransport))
	assert.False(t, store.profile(1).Active)
	assert.Nil(t, store.profile(1).LastDeliveryDate)
}

func TestCancelPendingDiscardsLateResult(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	gen := newFakeGenerator()
	sender := newFakeSender()
	svc := newTestService(store, gen, sender, nil, PolicyOncePerWindow)

	started := make(chan struct{})
	release := make(chan struct{})
	gen.hook = func(ctx context.Context, _ *domain.UserProfile) error {
		close(started)
		// The provider ignores cancellation and answers late.
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestNow(context.Background(), 1)
		done <- err
	}()

	<-started
	assert.True(t, svc.Pending(1))

	_, err := svc.RequestNow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRequestPending)

	assert.True(t, svc.CancelPending(1))
	assert.False(t, svc.CancelPending(1))
	close(release)

	assert.ErrorIs(t, <-done, ErrRequestCancelled)
	assert.Zero(t, sender.total())
	assert.Nil(t, store.profile(1).LastDeliveryDate)
	assert.False(t, svc.Pending(1))
}

func TestCancelPendingWithoutRequest(t *testing.T) {
	svc := newTestService(newMemStore(), newFakeGenerator(), newFakeSender(), nil, PolicyAlways)
	assert.False(t, svc.CancelPending(1))
}

func TestCancelAll(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	gen := newFakeGenerator()
	svc := newTestService(store, gen, newFakeSender(), nil, PolicyAlways)

	started := make(chan struct{})
	release := make(chan struct{})
	gen.hook = func(context.Context, *domain.UserProfile) error {
		close(started)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestNow(context.Background(), 1)
		done <- err
	}()

	<-started
	assert.Equal(t, 1, svc.CancelAll())
	assert.Zero(t, svc.CancelAll())
	close(release)

	require.ErrorIs(t, <-done, ErrRequestCancelled)
	assert.False(t, svc.Pending(1))
}

func TestRequestNowSerializesWithLoop(t *testing.T) {
	base := newMemStore(activeProfile(1, "Ana"))
	store := &notifyingStore{memStore: base, listed: make(chan struct{})}
	gen := newFakeGenerator()
	sender := newFakeSender()
	locker := state.NewLocalLocker()
	svc := newTestService(store, gen, sender, locker, PolicyOncePerWindow)
	loop := NewLoop(store, gen, stubPrompts{}, sender, locker, Config{Concurrency: 1}, logger.Discard())

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	gen.hook = func(context.Context, *domain.UserProfile) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}

	ctx := context.Background()
	requested := make(chan error, 1)
	go func() {
		_, err := svc.RequestNow(ctx, 1)
		requested <- err
	}()
	<-started

	type runResult struct {
		report *Report
		err    error
	}
	ran := make(chan runResult, 1)
	go func() {
		report, err := loop.Run(ctx, testWindow)
		ran <- runResult{report: report, err: err}
	}()

	// The run saw the profile as eligible before the on-demand send finished.
	<-store.listed
	close(release)

	require.NoError(t, <-requested)
	res := <-ran
	require.NoError(t, res.err)
	assert.Zero(t, res.report.Delivered)
	require.Len(t, res.report.Outcomes, 1)
	assert.Equal(t, StatusSkipped, res.report.Outcomes[0].Status)
	assert.Equal(t, "already_delivered", res.report.Outcomes[0].Reason)

	assert.Equal(t, 1, sender.count(1))
	assert.Equal(t, 1, gen.total())
}

func TestRequestNowRechecksWindowUnderLock(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	gen := newFakeGenerator()
	sender := newFakeSender()
	locker := state.NewLocalLocker()
	svc := newTestService(store, gen, sender, locker, PolicyOncePerWindow)
	ctx := context.Background()

	// A scheduled delivery holds the user.
	unlock, err := locker.Lock(ctx, DeliveryLockKey(1))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestNow(ctx, 1)
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.Pending(1) }, time.Second, time.Millisecond)
	_, err = store.MarkDelivered(ctx, 1, testWindow)
	require.NoError(t, err)
	unlock()

	assert.ErrorIs(t, <-done, ErrAlreadyDelivered)
	assert.Zero(t, gen.total())
	assert.Zero(t, sender.total())
}

func TestCancelPendingWhileWaitingForLock(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	gen := newFakeGenerator()
	locker := state.NewLocalLocker()
	svc := newTestService(store, gen, newFakeSender(), locker, PolicyOncePerWindow)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, DeliveryLockKey(1))
	require.NoError(t, err)
	defer unlock()

	done := make(chan error, 1)
	go func() {
		_, err := svc.RequestNow(ctx, 1)
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.Pending(1) }, time.Second, time.Millisecond)
	assert.True(t, svc.CancelPending(1))

	assert.ErrorIs(t, <-done, ErrRequestCancelled)
	assert.Zero(t, gen.total())
}

func TestRequestNowMarksWindowAfterCallerCancels(t *testing.T) {
	store := newMemStore(activeProfile(1, "Ana"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancelAfterSend{fakeSender: newFakeSender(), cancel: cancel}
	svc := newTestService(ctxStore{store}, newFakeGenerator(), sender, nil, PolicyOncePerWindow)

	_, err := svc.RequestNow(ctx, 1)
	require.NoError(t, err)

	p := store.profile(1)
	require.NotNil(t, p.LastDeliveryDate)
	assert.Equal(t, testWindow, *p.LastDeliveryDate)

	_, err = svc.RequestNow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	assert.Equal(t, 1, sender.count(1))
}
