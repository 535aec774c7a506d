package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	"github.com/Proton-105/horoscope-bot/internal/idempotency"
)

// UpdateTTL is how long a processed update is remembered.
const UpdateTTL = 24 * time.Hour

// Idempotency ensures handlers execute at most once per Telegram update.
// When the store is unreachable the update is processed anyway.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			ran := false
			result, err := manager.Execute(handlers.RequestContext(c), key, UpdateTTL, func(context.Context) error {
				ran = true
				return next(c)
			})
			switch {
			case err == nil:
				if result != nil && result.Duplicate {
					log.Info("duplicate update ignored", slog.String("key", key))
				}
				return nil
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.Info("update already in progress", slog.String("key", key))
				return nil
			case ran:
				return err
			default:
				log.Warn("idempotency store unavailable", slog.String("key", key), slog.Any("error", err))
				return next(c)
			}
		}
	}
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil {
		if cb.ID != "" {
			return idempotency.CallbackKey(cb.ID)
		}
		return ""
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.MessageKey(chatID, msg.ID)
	}

	return ""
}
