package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// NewSendTodayHandler runs the delivery loop for the current window. Only
// configured administrators may use it.
func NewSendTodayHandler(
	runner DeliveryRunner,
	currentWindow func() domain.Window,
	adminIDs []int64,
	r *Renderer,
	log *slog.Logger,
) Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			return nil
		}

		t := r.Translator(LanguageOf(c))
		userID := c.Sender().ID
		if _, ok := admins[userID]; !ok {
			log.Warn("manual delivery denied", slog.Int64("user_id", userID))
			return c.Send(t.T("admin.denied"))
		}

		ctx := RequestContext(c)
		w := currentWindow()
		log.InfoContext(ctx, "manual delivery requested", slog.Int64("user_id", userID), slog.String("window", w.String()))
		if err := c.Send(t.Tf("admin.run_started", w.String())); err != nil {
			log.WarnContext(ctx, "failed to acknowledge manual delivery", slog.Any("error", err))
		}

		report, err := runner.RunNow(ctx, w)
		if err != nil {
			return err
		}
		return c.Send(t.Tf("admin.run_report", report.Window.String(), report.Delivered, report.Skipped, report.Failed))
	}
}
