package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/keyboard"
	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// NewHoroscopeHandler generates today's horoscope on demand. The result is
// delivered by the service through the bot sender.
func NewHoroscopeHandler(horoscopes Horoscopes, r *Renderer, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			return nil
		}

		ctx := RequestContext(c)
		userID := c.Sender().ID
		t := r.Translator(LanguageOf(c))

		if err := c.Send(t.T("horoscope.generating"), keyboard.CancelRequest(t.T("common.cancel"), userID)); err != nil {
			log.WarnContext(ctx, "failed to acknowledge horoscope request", slog.Int64("user_id", userID), slog.Any("error", err))
		}

		res, err := horoscopes.RequestNow(ctx, userID)
		switch {
		case err == nil:
			log.InfoContext(ctx, "horoscope served",
				slog.Int64("user_id", userID),
				slog.String("target", res.Target),
				slog.Int("attempts", res.Attempts),
			)
			return nil
		case errors.Is(err, domain.ErrProfileNotFound):
			return c.Send(t.T("horoscope.need_profile"))
		case errors.Is(err, deliver.ErrAlreadyDelivered):
			return c.Send(t.T("horoscope.already_delivered"))
		case errors.Is(err, deliver.ErrRequestPending):
			return c.Send(t.T("horoscope.pending"))
		case errors.Is(err, deliver.ErrRequestCancelled):
			return nil
		default:
			return err
		}
	}
}

// NewCancelRequestCallback handles the inline cancel button. Only the user
// who owns the request can cancel it.
func NewCancelRequestCallback(horoscopes Horoscopes, r *Renderer, log *slog.Logger) CallbackHandler {
	return func(c telebot.Context) error {
		cb := c.Callback()
		if cb == nil || c.Sender() == nil {
			return nil
		}

		userID := c.Sender().ID
		t := r.Translator(LanguageOf(c))

		_, data, err := keyboard.DecodeCallback(cb.Data)
		if err != nil {
			return c.Respond()
		}
		owner, err := strconv.ParseInt(data, 10, 64)
		if err != nil || owner != userID {
			log.Warn("cancel callback for another user", slog.Int64("user_id", userID), slog.String("data", cb.Data))
			return c.Respond()
		}

		if !horoscopes.CancelPending(userID) {
			return c.Respond()
		}
		return c.Respond(&telebot.CallbackResponse{Text: t.T("horoscope.cancelled")})
	}
}
