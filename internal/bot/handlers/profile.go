package handlers

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// NewProfileHandler shows the stored profile.
func NewProfileHandler(profiles Profiles, r *Renderer, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			return nil
		}

		p, err := profiles.Profile(RequestContext(c), c.Sender().ID)
		if err != nil {
			if errors.Is(err, domain.ErrProfileNotFound) {
				return c.Send(r.Translator(LanguageOf(c)).T("profile.none"))
			}
			return err
		}

		return c.Send(r.Profile(p))
	}
}

// NewStopHandler pauses daily delivery.
func NewStopHandler(profiles Profiles, r *Renderer, log *slog.Logger) Handler {
	return toggleHandler(profiles.Stop, "subscription.stopped", r, log)
}

// NewResumeHandler re-enables daily delivery.
func NewResumeHandler(profiles Profiles, r *Renderer, log *slog.Logger) Handler {
	return toggleHandler(profiles.Resume, "subscription.resumed", r, log)
}

func toggleHandler(
	apply func(ctx context.Context, userID int64) error,
	doneKey string,
	r *Renderer,
	log *slog.Logger,
) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			return nil
		}

		t := r.Translator(LanguageOf(c))
		if err := apply(RequestContext(c), c.Sender().ID); err != nil {
			if errors.Is(err, domain.ErrProfileNotFound) {
				return c.Send(t.T("profile.none"))
			}
			log.Error("failed to toggle delivery", slog.Int64("user_id", c.Sender().ID), slog.Any("error", err))
			return err
		}
		return c.Send(t.T(doneKey))
	}
}

// NewHelpHandler lists the commands.
func NewHelpHandler(r *Renderer) Handler {
	return func(c telebot.Context) error {
		return c.Send(r.Translator(LanguageOf(c)).T("help.text"))
	}
}
