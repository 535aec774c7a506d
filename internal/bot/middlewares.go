package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/state"
)

// ProfileReader resolves a stored profile.
type ProfileReader interface {
	Profile(ctx context.Context, userID int64) (*domain.UserProfile, error)
}

// SessionReader resolves an in-progress registration.
type SessionReader interface {
	Session(ctx context.Context, userID int64) (*state.Session, error)
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, renderer *handlers.Renderer) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					key := apperrors.MsgGeneric
					if errHandler != nil {
						appErr := apperrors.NewStateError(fmt.Sprintf("panic recovered: %v", r))
						appErr.Severity = apperrors.SeverityCritical
						if msg, _ := errHandler.Handle(handlers.RequestContext(c), appErr); msg != "" {
							key = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(translate(renderer, c, key)); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, renderer *handlers.Renderer) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			key := apperrors.MsgGeneric
			if errHandler != nil {
				if msg, _ := errHandler.Handle(handlers.RequestContext(c), err); msg != "" {
					key = msg
				}
			}

			if c != nil {
				_ = c.Send(translate(renderer, c, key))
			}

			return nil
		}
	}
}

// LoggingMiddleware assigns a correlation id and logs basic telemetry about
// incoming updates.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			handlers.SetCorrelationID(c, uuid.NewString())
			ctx := handlers.RequestContext(c)

			userID := int64(0)
			if c.Sender() != nil {
				userID = c.Sender().ID
			}

			action := "message"
			if cb := c.Callback(); cb != nil {
				action = "callback"
			} else if text := c.Text(); len(text) > 0 && text[0] == '/' {
				action = commandOf(text)
			}

			log.DebugContext(ctx, "handling update", slog.Int64("user_id", userID), slog.String("action", action))
			err := next(c)
			log.InfoContext(ctx, "handled update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// LanguageMiddleware picks the reply language from the stored profile or,
// during registration, from the language already chosen.
func LanguageMiddleware(profiles ProfileReader, sessions SessionReader, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if c == nil || c.Sender() == nil {
				return next(c)
			}

			ctx := handlers.RequestContext(c)
			userID := c.Sender().ID

			if sessions != nil {
				session, err := sessions.Session(ctx, userID)
				switch {
				case err == nil && session.Draft.Language != "":
					handlers.SetLanguage(c, session.Draft.Language)
					return next(c)
				case err != nil && !errors.Is(err, state.ErrSessionNotFound):
					log.WarnContext(ctx, "failed to load session language", slog.Int64("user_id", userID), slog.Any("error", err))
				}
			}

			if profiles != nil {
				p, err := profiles.Profile(ctx, userID)
				switch {
				case err == nil:
					handlers.SetLanguage(c, p.Language)
				case !errors.Is(err, domain.ErrProfileNotFound):
					log.WarnContext(ctx, "failed to load profile language", slog.Int64("user_id", userID), slog.Any("error", err))
				}
			}

			return next(c)
		}
	}
}

func translate(renderer *handlers.Renderer, c telebot.Context, key string) string {
	if renderer == nil {
		return key
	}
	return renderer.Translator(handlers.LanguageOf(c)).T(key)
}
