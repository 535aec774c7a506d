package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

// GinLogger attaches a correlation id to each admin request and logs the
// outcome once the handler chain finishes.
func GinLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(c *gin.Context) {
		start := time.Now()

		ctx := logger.WithCorrelationID(c.Request.Context(), c.GetHeader(logger.CorrelationIDHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(logger.CorrelationIDHeader, logger.CorrelationIDFromContext(ctx))

		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		if c.Writer.Status() >= 500 {
			log.ErrorContext(ctx, "handled http request", attrs...)
			return
		}
		log.InfoContext(ctx, "handled http request", attrs...)
	}
}
