package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

var errorRecorder = func(kind, severity string) {}

// RegisterErrorRecorder lets metrics observe handled errors without this
// package importing them.
func RegisterErrorRecorder(recorder func(kind, severity string)) {
	if recorder == nil {
		errorRecorder = func(string, string) {}
		return
	}
	errorRecorder = recorder
}

// Handler logs failures, reports severe ones to Sentry, and picks the
// catalog key of the message shown to the user.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle returns the user message key and whether the user may retry.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	attrs := []any{slog.String("error", err.Error())}
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		attrs = append(attrs,
			slog.String("code", appErr.Code),
			slog.String("kind", string(appErr.Kind)),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		)

		errorRecorder(string(appErr.Kind), string(appErr.Severity))

		switch appErr.Severity {
		case SeverityLow:
			h.log.InfoContext(ctx, "application error", attrs...)
		case SeverityMedium:
			h.log.WarnContext(ctx, "application error", attrs...)
		default:
			h.log.ErrorContext(ctx, "application error", attrs...)
		}

		if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
			h.sendToSentry(err)
		}

		userMessage := appErr.UserMessage
		if userMessage == "" {
			userMessage = MsgGeneric
		}

		return userMessage, appErr.Retryable
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		errorRecorder("aborted", string(SeverityLow))
		h.log.WarnContext(ctx, "request aborted", attrs...)
		return MsgTryAgainShortly, true
	}

	errorRecorder("unknown", string(SeverityHigh))
	h.log.ErrorContext(ctx, "unknown error", attrs...)

	if h.sentryEnabled {
		h.sendToSentry(err)
	}

	return MsgGeneric, false
}

func (h *Handler) sendToSentry(err error) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}
			if appErr.Kind != "" {
				scope.SetTag("kind", string(appErr.Kind))
			}
			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}

		sentry.CaptureException(err)
	})
}
