package handlers

import (
	"context"
	"io"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/profile"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Registration drives the registration dialogue.
type Registration interface {
	Start(ctx context.Context, userID int64) (state.Outcome, error)
	Reset(ctx context.Context, userID int64) (state.Outcome, error)
	Submit(ctx context.Context, userID int64, in state.Input) (state.Outcome, error)
	Cancel(ctx context.Context, userID int64) (state.Outcome, error)
}

// Profiles reads and toggles stored profiles.
type Profiles interface {
	Profile(ctx context.Context, userID int64) (*domain.UserProfile, error)
	Stop(ctx context.Context, userID int64) error
	Resume(ctx context.Context, userID int64) error
}

// Horoscopes serves on-demand requests.
type Horoscopes interface {
	RequestNow(ctx context.Context, userID int64) (*orchestrator.Result, error)
	CancelPending(userID int64) bool
}

// DeliveryRunner starts a manual delivery run.
type DeliveryRunner interface {
	RunNow(ctx context.Context, w domain.Window) (*deliver.Report, error)
}

// FileFetcher downloads Telegram files. *telebot.Bot satisfies it.
type FileFetcher interface {
	File(file *telebot.File) (io.ReadCloser, error)
}

const (
	keyCorrelationID = "correlation_id"
	keyLanguage      = "language"
)

// SetCorrelationID attaches the update's correlation id.
func SetCorrelationID(c telebot.Context, id string) {
	c.Set(keyCorrelationID, id)
}

// CorrelationID returns the id set by SetCorrelationID.
func CorrelationID(c telebot.Context) string {
	if c == nil {
		return ""
	}
	id, _ := c.Get(keyCorrelationID).(string)
	return id
}

// RequestContext returns a context carrying the update's correlation id.
func RequestContext(c telebot.Context) context.Context {
	ctx := context.Background()
	if id := CorrelationID(c); id != "" {
		return logger.WithCorrelationID(ctx, id)
	}
	return ctx
}

// SetLanguage records the language replies to this update use.
func SetLanguage(c telebot.Context, lang domain.Language) {
	if lang.Code() != "" {
		c.Set(keyLanguage, lang)
	}
}

// LanguageOf returns the language chosen for the update, falling back to
// the Telegram client language and then English.
func LanguageOf(c telebot.Context) domain.Language {
	if c == nil {
		return domain.LanguageEN
	}
	if lang, ok := c.Get(keyLanguage).(domain.Language); ok && lang.Code() != "" {
		return lang
	}
	if sender := c.Sender(); sender != nil && sender.LanguageCode != "" {
		code, _, _ := strings.Cut(sender.LanguageCode, "-")
		if lang, err := profile.ParseLanguage(code); err == nil {
			return lang
		}
	}
	return domain.LanguageEN
}

func send(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	if markup == nil {
		return c.Send(text)
	}
	return c.Send(text, markup)
}
