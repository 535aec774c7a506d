package handlers

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// SessionSweeper is implemented by *state.Cleaner.
type SessionSweeper interface {
	Cleanup(ctx context.Context) int
}

type SessionCleanupHandler struct {
	sweeper SessionSweeper
	log     *slog.Logger
}

func NewSessionCleanupHandler(sweeper SessionSweeper, log *slog.Logger) *SessionCleanupHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionCleanupHandler{sweeper: sweeper, log: log}
}

func (h *SessionCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	removed := h.sweeper.Cleanup(ctx)
	h.log.DebugContext(ctx, "registration sessions swept", slog.String("task_type", t.Type()), slog.Int("removed", removed))
	return nil
}
