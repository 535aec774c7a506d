package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "***"

// secretKeys are replaced outright; piiKeys keep their first rune.
var (
	secretKeys = map[string]struct{}{
		"password": {}, "token": {}, "secret": {}, "api_key": {},
		"authorization": {}, "dsn": {}, "bot_token": {}, "admin_token": {},
	}
	piiKeys = map[string]struct{}{
		"name": {}, "birth_date": {}, "profession": {}, "hobbies": {}, "text": {}, "transcript": {},
	}
)

// botTokenPattern matches Telegram bot tokens, which leak into error
// strings through Bot API URLs.
var botTokenPattern = regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_-]{30,}`)

// MaskingHandler redacts credentials and user profile data before
// delegating to next.
type MaskingHandler struct {
	next slog.Handler
}

// NewMaskingHandler wraps next.
func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = maskAttr(attr)
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	masked := slog.NewRecord(record.Time, record.Level, scrub(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		masked.AddAttrs(maskAttr(attr))
		return true
	})
	return h.next.Handle(ctx, masked)
}

func maskAttr(attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if _, ok := secretKeys[key]; ok {
		return slog.String(attr.Key, redacted)
	}

	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindGroup:
		members := value.Group()
		masked := make([]any, 0, len(members))
		for _, member := range members {
			masked = append(masked, maskAttr(member))
		}
		return slog.Group(attr.Key, masked...)
	case slog.KindString:
		if _, ok := piiKeys[key]; ok {
			return slog.String(attr.Key, initial(value.String()))
		}
		return slog.String(attr.Key, scrub(value.String()))
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return slog.String(attr.Key, scrub(err.Error()))
		}
	}
	return slog.Attr{Key: attr.Key, Value: value}
}

func initial(s string) string {
	for _, r := range s {
		return string(r) + redacted
	}
	return ""
}

func scrub(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	return botTokenPattern.ReplaceAllString(s, redacted)
}
