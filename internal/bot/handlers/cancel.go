package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/state"
)

// NewCancelHandler aborts a pending horoscope request and the registration
// in progress, whichever exist.
func NewCancelHandler(reg Registration, horoscopes Horoscopes, r *Renderer, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			log.Warn("cancel handler invoked without sender context")
			return nil
		}

		userID := c.Sender().ID
		requestCancelled := horoscopes != nil && horoscopes.CancelPending(userID)
		if requestCancelled {
			log.Info("pending horoscope cancelled", slog.Int64("user_id", userID))
		}

		out, err := reg.Cancel(RequestContext(c), userID)
		if err != nil {
			return err
		}

		if out.Effect == state.EffectNoSession {
			t := r.Translator(LanguageOf(c))
			if requestCancelled {
				return c.Send(t.T("horoscope.cancelled"))
			}
			return c.Send(t.T("registration.no_session"))
		}

		return replyOutcome(c, r, out)
	}
}
