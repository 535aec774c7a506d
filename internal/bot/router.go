package bot

import (
	"log/slog"
	"strings"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	"github.com/Proton-105/horoscope-bot/internal/bot/keyboard"
)

// Router dispatches commands, callbacks and plain messages through the
// middleware chain.
type Router struct {
	mu             sync.RWMutex
	commands       map[string]handlers.Handler
	callbacks      map[string]handlers.CallbackHandler
	dispatcher     *Dispatcher
	defaultHandler handlers.Handler
	middlewares    []handlers.Middleware
	log            *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(dispatcher *Dispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:    make(map[string]handlers.Handler),
		callbacks:   make(map[string]handlers.CallbackHandler),
		dispatcher:  dispatcher,
		middlewares: make([]handlers.Middleware, 0),
		log:         log,
	}
}

// RegisterCommand registers a handler for a bot command.
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd] = h
}

// RegisterCallback registers a handler for a callback identifier.
func (r *Router) RegisterCallback(unique string, h handlers.CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[unique] = h
}

// Use appends a middleware to the chain.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the handler for unknown commands.
func (r *Router) SetDefault(h handlers.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = h
}

// Route directs the incoming update to the appropriate handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	if callback := c.Callback(); callback != nil {
		return r.handleCallback(c, callback.Data)
	}

	return r.handleMessage(c)
}

func (r *Router) handleCallback(c telebot.Context, data string) error {
	unique, _, err := keyboard.DecodeCallback(strings.TrimPrefix(data, "\f"))
	if err != nil {
		r.log.Info("malformed callback data", "data", data)
		return c.Respond()
	}

	handler := r.getCallbackHandler(unique)
	if handler == nil {
		r.log.Info("no callback handler found", "data", data)
		return c.Respond()
	}

	return r.executeHandler(handlers.Handler(handler), c)
}

func (r *Router) handleMessage(c telebot.Context) error {
	text := c.Text()

	if strings.HasPrefix(text, "/") {
		if handler := r.getCommandHandler(commandOf(text)); handler != nil {
			return r.executeHandler(handler, c)
		}
		if handler := r.getDefaultHandler(); handler != nil {
			return r.executeHandler(handler, c)
		}
		return nil
	}

	if r.dispatcher == nil {
		return nil
	}
	if handler := r.dispatcher.Handler(c); handler != nil {
		return r.executeHandler(handler, c)
	}
	return nil
}

// commandOf strips arguments and the @botname suffix.
func commandOf(text string) string {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

func (r *Router) executeHandler(h handlers.Handler, c telebot.Context) error {
	wrapped := r.applyMiddlewares(h)
	if wrapped == nil {
		return nil
	}
	return wrapped(c)
}

func (r *Router) getCallbackHandler(unique string) handlers.CallbackHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbacks[unique]
}

func (r *Router) getCommandHandler(cmd string) handlers.Handler {
	r.mu.RLock()
	handler := r.commands[cmd]
	r.mu.RUnlock()
	return handler
}

func (r *Router) getDefaultHandler() handlers.Handler {
	r.mu.RLock()
	handler := r.defaultHandler
	r.mu.RUnlock()
	return handler
}

// applyMiddlewares wraps the handler with all registered middlewares.
func (r *Router) applyMiddlewares(h handlers.Handler) handlers.Handler {
	if h == nil {
		return nil
	}

	middlewares := r.middlewaresSnapshot()
	wrapped := h
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}

	return wrapped
}

func (r *Router) middlewaresSnapshot() []handlers.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.middlewares) == 0 {
		return nil
	}

	snapshot := make([]handlers.Middleware, len(r.middlewares))
	copy(snapshot, r.middlewares)
	return snapshot
}
