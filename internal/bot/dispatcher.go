package bot

import (
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
)

// MessageKind classifies non-command messages.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVoice MessageKind = "voice"
)

// Dispatcher routes plain messages to the handler registered for their kind.
type Dispatcher struct {
	kindHandlers map[MessageKind]handlers.Handler
	log          *slog.Logger
	mu           sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		kindHandlers: make(map[MessageKind]handlers.Handler),
		log:          log,
	}
}

// RegisterKindHandler registers a handler for the provided message kind.
func (d *Dispatcher) RegisterKindHandler(kind MessageKind, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kindHandlers[kind] = h
}

// Handler returns the handler of the update's kind, or nil.
func (d *Dispatcher) Handler(c telebot.Context) handlers.Handler {
	if c == nil || c.Sender() == nil {
		d.log.Warn("cannot dispatch without sender information")
		return nil
	}

	kind := KindText
	if msg := c.Message(); msg != nil && msg.Voice != nil {
		kind = KindVoice
	}

	handler := d.getHandler(kind)
	if handler == nil {
		d.log.Info("no handler registered for message kind", "kind", kind, "user_id", c.Sender().ID)
	}
	return handler
}

func (d *Dispatcher) getHandler(kind MessageKind) handlers.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kindHandlers[kind]
}
