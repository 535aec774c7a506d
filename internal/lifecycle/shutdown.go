// Package lifecycle coordinates probes and ordered shutdown of the bot's
// components.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Shutdown runs hooks in reverse registration order so components stop
// before the resources they depend on are closed.
type Shutdown struct {
	mu    sync.Mutex
	hooks []Hook
	done  bool
	log   *slog.Logger
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log}
}

// Register adds a named shutdown hook.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, Hook{Name: name, Fn: fn})
}

// RegisterCloser adds a hook for a component with a plain Close method.
func (s *Shutdown) RegisterCloser(name string, close func() error) {
	if close == nil {
		return
	}
	s.Register(name, func(context.Context) error { return close() })
}

// Execute runs every hook once, last registered first. Failures are
// collected and do not stop later hooks. Further calls are no-ops.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("hook_count", len(hooks)))

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}

		s.log.Debug("running shutdown hook", slog.String("hook", h.Name))
		if err := h.Fn(ctx); err != nil {
			s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}
