package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

// Cleaner removes sessions that were started longer than maxAge ago. Idle
// sessions already expire through the storage TTL; this bounds sessions that
// keep receiving invalid answers.
type Cleaner struct {
	storage  Storage
	log      *slog.Logger
	clock    clock.Clock
	maxAge   time.Duration
	interval time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(storage Storage, log *slog.Logger, maxAge, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		storage:  storage,
		log:      log,
		clock:    clock.Real{},
		maxAge:   maxAge,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.storage == nil || c.maxAge <= 0 || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("session cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup performs one sweep and returns the number of removed sessions.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	sessions, err := c.storage.List(ctx)
	if err != nil {
		c.log.Error("session cleaner list failed", slog.Any("error", err))
		return 0
	}

	now := c.clock.Now()
	removed := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		if now.Sub(session.StartedAt) <= c.maxAge {
			continue
		}

		if err := c.storage.Delete(ctx, session.UserID); err != nil {
			c.log.Error("session cleaner failed to delete session", slog.Int64("user_id", session.UserID), slog.Any("error", err))
			continue
		}
		transitionRecorder(string(session.Step), "expired")
		removed++
	}

	if removed > 0 {
		c.log.Info("expired sessions removed", slog.Int("count", removed))
	}
	return removed
}
