// Package logger builds the structured slog logger shared by every component.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/horoscope-bot/pkg/config"
)

// New builds the application logger. The returned LevelVar lets callers
// change verbosity at runtime.
func New(cfg config.LoggerConfig, sentryEnabled bool) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	var out io.Writer = os.Stdout
	if cfg.File.Path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if sentryEnabled {
		handler = NewFanoutHandler(handler, slogsentry.Option{Level: slog.LevelError, AddSource: true}.NewSentryHandler())
	}

	handler = NewContextHandler(NewMaskingHandler(handler))
	return slog.New(handler), level
}

// ParseLevel maps a config level name onto slog, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
