// Package handlers processes queued background tasks.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/jobs"
)

// DeliveryRunner is implemented by *deliver.Loop.
type DeliveryRunner interface {
	Run(ctx context.Context, w domain.Window, opts ...deliver.RunOption) (*deliver.Report, error)
	CurrentWindow() domain.Window
}

type DeliveryHandler struct {
	runner DeliveryRunner
	log    *slog.Logger
}

func NewDeliveryHandler(runner DeliveryRunner, log *slog.Logger) *DeliveryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DeliveryHandler{runner: runner, log: log}
}

// ProcessTask runs the loop for the payload window. Per-profile failures
// stay in the report; only a run that could not start is retried.
func (h *DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.DeliveryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			h.log.ErrorContext(ctx, "delivery: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
			return fmt.Errorf("decode delivery payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	window := h.runner.CurrentWindow()
	if payload.Window != "" {
		w, err := domain.ParseWindow(payload.Window)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		window = w
	}

	report, err := h.runner.Run(ctx, window, deliver.Triggered(deliver.TriggerQueue))
	if err != nil {
		h.log.ErrorContext(ctx, "delivery: run failed", slog.String("window", window.String()), slog.Any("error", err))
		return err
	}

	h.log.InfoContext(ctx, "delivery: task processed",
		slog.String("run_id", report.RunID),
		slog.String("window", window.String()),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
	)
	return nil
}
