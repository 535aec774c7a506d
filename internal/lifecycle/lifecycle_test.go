package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/health"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	s := NewShutdown(logger.Discard())

	var order []string
	s.Register("db", func(context.Context) error { order = append(order, "db"); return nil })
	s.RegisterCloser("redis", func() error { order = append(order, "redis"); return errors.New("closed twice") })
	s.Register("bot", func(context.Context) error { order = append(order, "bot"); return nil })
	s.Register("nil", nil)

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: closed twice")
	assert.Equal(t, []string{"bot", "redis", "db"}, order)

	require.NoError(t, s.Execute(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownSkipsHooksAfterDeadline(t *testing.T) {
	s := NewShutdown(logger.Discard())
	called := false
	s.Register("db", func(context.Context) error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestProbes(t *testing.T) {
	checker := health.NewChecker(logger.Discard())
	healthy := true
	checker.AddCheck("db", health.CheckFunc(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	}))

	p := NewProbes(checker, logger.Discard())
	require.NoError(t, p.Liveness(context.Background()))
	require.NoError(t, p.Readiness(context.Background()))

	healthy = false
	err := p.Readiness(context.Background())
	require.Error(t, err)
	assert.Equal(t, "db: down", err.Error())
	assert.False(t, p.Report(context.Background()).Healthy)

	healthy = true
	p.Drain()
	require.ErrorIs(t, p.Readiness(context.Background()), ErrShuttingDown)
	require.NoError(t, p.Liveness(context.Background()))
}
