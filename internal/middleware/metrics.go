package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	"github.com/Proton-105/horoscope-bot/internal/bot/keyboard"
	"github.com/Proton-105/horoscope-bot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(CommandName(c), status, time.Since(start))

		return err
	}
}

// CommandName labels an update without leaking free text into metrics.
func CommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		if unique, _, err := keyboard.DecodeCallback(cb.Data); err == nil {
			return "callback:" + unique
		}
		return "callback"
	}

	if msg := c.Message(); msg != nil && msg.Voice != nil {
		return "voice"
	}

	text := c.Text()
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		cmd, _, _ = strings.Cut(cmd, "@")
		return cmd
	}
	if text != "" {
		return "text"
	}

	return "unknown"
}
