package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/internal/transcribe"
)

// maxVoiceBytes caps downloads well above a minute of Opus audio.
const maxVoiceBytes = 2 << 20

// NewStartHandler begins or resumes registration.
func NewStartHandler(reg Registration, r *Renderer, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			log.Warn("start handler invoked without sender")
			return nil
		}

		out, err := reg.Start(RequestContext(c), c.Sender().ID)
		if err != nil {
			return err
		}
		return replyOutcome(c, r, out)
	}
}

// NewResetHandler starts a new registration that replaces the profile once
// it completes.
func NewResetHandler(reg Registration, r *Renderer, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		if c == nil || c.Sender() == nil {
			log.Warn("reset handler invoked without sender")
			return nil
		}

		out, err := reg.Reset(RequestContext(c), c.Sender().ID)
		if err != nil {
			return err
		}

		text, markup := r.Outcome(out)
		intro := r.Translator(out.Language).T("registration.reset_started")
		return send(c, intro+"\n\n"+text, markup)
	}
}

// NewAnswerHandler feeds plain text into the registration dialogue.
func NewAnswerHandler(reg Registration, profiles Profiles, r *Renderer, log *slog.Logger) Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || c.Sender() == nil {
			return nil
		}
		return submit(c, reg, profiles, r, int64(msg.ID), c.Text())
	}
}

// NewVoiceHandler transcribes a voice note and treats it as typed text. A
// nil transcriber tells the user voice is not supported.
func NewVoiceHandler(
	reg Registration,
	profiles Profiles,
	tr transcribe.Transcriber,
	files FileFetcher,
	r *Renderer,
	log *slog.Logger,
) Handler {
	return func(c telebot.Context) error {
		msg := c.Message()
		if msg == nil || msg.Voice == nil || c.Sender() == nil {
			return nil
		}

		t := r.Translator(LanguageOf(c))
		if tr == nil || files == nil {
			return c.Send(t.T("voice.disabled"))
		}

		ctx := RequestContext(c)
		text, err := transcribeVoice(ctx, tr, files, msg.Voice, LanguageOf(c))
		switch {
		case errors.Is(err, transcribe.ErrTooLong):
			return c.Send(t.T("voice.too_long"))
		case err != nil:
			log.WarnContext(ctx, "voice message not transcribed",
				slog.Int64("user_id", c.Sender().ID),
				slog.Any("error", err),
			)
			return c.Send(t.T("voice.not_recognized"))
		}

		log.DebugContext(ctx, "voice message transcribed", slog.Int64("user_id", c.Sender().ID))
		return submit(c, reg, profiles, r, int64(msg.ID), text)
	}
}

func transcribeVoice(
	ctx context.Context,
	tr transcribe.Transcriber,
	files FileFetcher,
	voice *telebot.Voice,
	lang domain.Language,
) (string, error) {
	duration := time.Duration(voice.Duration) * time.Second
	if voice.FileSize > maxVoiceBytes {
		return "", transcribe.ErrTooLong
	}

	rc, err := files.File(&voice.File)
	if err != nil {
		return "", fmt.Errorf("download voice: %w", err)
	}
	defer rc.Close()

	audio, err := io.ReadAll(io.LimitReader(rc, maxVoiceBytes+1))
	if err != nil {
		return "", fmt.Errorf("read voice: %w", err)
	}
	if len(audio) > maxVoiceBytes {
		return "", transcribe.ErrTooLong
	}

	return tr.Transcribe(ctx, audio, duration, lang)
}

func submit(c telebot.Context, reg Registration, profiles Profiles, r *Renderer, messageID int64, text string) error {
	ctx := RequestContext(c)
	userID := c.Sender().ID

	out, err := reg.Submit(ctx, userID, state.Input{MessageID: messageID, Text: text})
	if err != nil {
		return err
	}
	if out.Effect != state.EffectNoSession {
		return replyOutcome(c, r, out)
	}

	t := r.Translator(LanguageOf(c))
	if _, err := profiles.Profile(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return c.Send(t.T("profile.none"))
		}
		return err
	}
	return c.Send(t.T("help.text"))
}

func replyOutcome(c telebot.Context, r *Renderer, out state.Outcome) error {
	SetLanguage(c, out.Language)
	text, markup := r.Outcome(out)
	return send(c, text, markup)
}
