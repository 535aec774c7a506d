package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Proton-105/horoscope-bot/internal/bot"
	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/state"
)

func newDeliverCommand() *cobra.Command {
	var window string

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Run the delivery loop once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deliverOnce(cmd.Context(), window)
		},
	}
	cmd.Flags().StringVar(&window, "window", "", "window to deliver as YYYY-MM-DD (default: today in the delivery time zone)")

	return cmd
}

func deliverOnce(ctx context.Context, rawWindow string) error {
	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.migrate(ctx); err != nil {
		return err
	}

	tb, err := bot.NewTelebot(c.cfg.Bot, c.log)
	if err != nil {
		return err
	}

	loop := c.newLoop(
		bot.NewSender(tb, c.log),
		state.NewRedisLocker(c.redis.Client, c.log, deliveryLockTTL(c.cfg.Generation), 0),
	)

	w := loop.CurrentWindow()
	if rawWindow != "" {
		if w, err = domain.ParseWindow(rawWindow); err != nil {
			return err
		}
	}

	report, err := loop.Run(ctx, w, deliver.Triggered(deliver.TriggerManual))
	if err != nil {
		return fmt.Errorf("delivery run: %w", err)
	}

	c.log.Info("delivery run finished",
		slog.String("run_id", report.RunID),
		slog.String("window", report.Window.String()),
		slog.Int("delivered", report.Delivered),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return nil
}
