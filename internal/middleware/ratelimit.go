package middleware

import (
	"errors"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user rate limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	limiter  ratelimit.Limiter
	rules    *ratelimit.Rules
	renderer *handlers.Renderer
	log      *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, renderer *handlers.Renderer, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter:  limiter,
		rules:    rules,
		renderer: renderer,
		log:      log,
	}
}

// Handle applies the global rule, the per-user rule and, for commands with
// their own rule, the command rule. Limiter failures let the update through.
func (m *RateLimitMiddleware) Handle(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil || c == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.IsWhitelisted(sender.ID) {
			return next(c)
		}

		if rule, ok := m.rules.PerUser(); ok && m.rejected(c, ratelimit.UserKey(sender.ID), rule) {
			return m.reject(c)
		}

		command := strings.TrimPrefix(CommandName(c), "/")
		if rule, ok := m.rules.Command(command); ok && m.rejected(c, ratelimit.CommandKey(sender.ID, command), rule) {
			return m.reject(c)
		}

		if rule, ok := m.rules.Global(); ok && m.rejected(c, ratelimit.GlobalKey, rule) {
			return m.reject(c)
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) rejected(c telebot.Context, key string, rule ratelimit.Rule) bool {
	_, err := m.limiter.Check(handlers.RequestContext(c), key, rule.Limit, rule.Window)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		m.log.Warn("rate limit exceeded", slog.String("key", key))
		return true
	default:
		m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return false
	}
}

func (m *RateLimitMiddleware) reject(c telebot.Context) error {
	text := apperrors.MsgRateLimited
	if m.renderer != nil {
		text = m.renderer.Translator(handlers.LanguageOf(c)).T(apperrors.MsgRateLimited)
	}
	if c.Callback() != nil {
		return c.Respond(&telebot.CallbackResponse{Text: text})
	}
	return c.Send(text)
}
