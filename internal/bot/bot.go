package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	"github.com/Proton-105/horoscope-bot/internal/bot/keyboard"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/i18n"
	"github.com/Proton-105/horoscope-bot/internal/idempotency"
	"github.com/Proton-105/horoscope-bot/internal/middleware"
	"github.com/Proton-105/horoscope-bot/internal/transcribe"
	"github.com/Proton-105/horoscope-bot/pkg/config"
)

// Deps are the services the bot routes updates to. Transcriber, Delivery,
// Idempotency and RateLimit are optional.
type Deps struct {
	Registration  handlers.Registration
	Sessions      SessionReader
	Profiles      handlers.Profiles
	Horoscopes    handlers.Horoscopes
	Delivery      handlers.DeliveryRunner
	CurrentWindow func() domain.Window
	Transcriber   transcribe.Transcriber
	Catalog       *i18n.Manager
	Idempotency   idempotency.Manager
	RateLimit     *middleware.RateLimitMiddleware
	ErrHandler    *apperrors.Handler
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot    *telebot.Bot
	log        *slog.Logger
	cfg        config.BotConfig
	router     *Router
	dispatcher *Dispatcher
	renderer   *handlers.Renderer
}

// NewTelebot creates the Telegram client configured for polling or webhook
// delivery of updates.
func NewTelebot(cfg config.BotConfig, log *slog.Logger) (*telebot.Bot, error) {
	settings := telebot.Settings{
		Token: cfg.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	return tb, nil
}

// New wires routing for an existing telebot instance.
func New(tb *telebot.Bot, cfg config.BotConfig, log *slog.Logger, deps Deps) (*Bot, error) {
	if deps.Registration == nil || deps.Profiles == nil || deps.Horoscopes == nil || deps.Catalog == nil {
		return nil, fmt.Errorf("bot: registration, profiles, horoscopes and catalog are required")
	}
	if log == nil {
		log = slog.Default()
	}

	renderer := handlers.NewRenderer(deps.Catalog)
	dispatcher := NewDispatcher(log)
	router := NewRouter(dispatcher, log)

	b := &Bot{
		telebot:    tb,
		log:        log,
		cfg:        cfg,
		router:     router,
		dispatcher: dispatcher,
		renderer:   renderer,
	}

	b.setupRouter(deps)
	b.registerTelebotHandlers()

	return b, nil
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	commands := make([]telebot.Command, 0, len(menuCommands))
	for _, cmd := range menuCommands {
		commands = append(commands, telebot.Command{Text: cmd.Command[1:], Description: cmd.Description})
	}
	if err := b.telebot.SetCommands(commands); err != nil {
		b.log.Warn("failed to publish command menu", slog.Any("error", err))
	}

	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Router exposes routing for tests and embedding.
func (b *Bot) Router() *Router {
	return b.router
}

func (b *Bot) setupRouter(deps Deps) {
	log := b.log
	r := b.renderer

	b.router.Use(RecoveryMiddleware(log, deps.ErrHandler, r))
	b.router.Use(LoggingMiddleware(log))
	b.router.Use(middleware.Idempotency(deps.Idempotency, log))
	b.router.Use(ErrorHandlingMiddleware(deps.ErrHandler, r))
	b.router.Use(LanguageMiddleware(deps.Profiles, deps.Sessions, log))
	if deps.RateLimit != nil {
		b.router.Use(deps.RateLimit.Handle)
	}
	b.router.Use(middleware.Metrics)

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(deps.Registration, r, log))
	b.router.RegisterCommand(CommandReset, handlers.NewResetHandler(deps.Registration, r, log))
	b.router.RegisterCommand(CommandCancel, handlers.NewCancelHandler(deps.Registration, deps.Horoscopes, r, log))
	b.router.RegisterCommand(CommandHoroscope, handlers.NewHoroscopeHandler(deps.Horoscopes, r, log))
	b.router.RegisterCommand(CommandProfile, handlers.NewProfileHandler(deps.Profiles, r, log))
	b.router.RegisterCommand(CommandStop, handlers.NewStopHandler(deps.Profiles, r, log))
	b.router.RegisterCommand(CommandResume, handlers.NewResumeHandler(deps.Profiles, r, log))
	b.router.RegisterCommand(CommandHelp, handlers.NewHelpHandler(r))
	b.router.SetDefault(handlers.NewHelpHandler(r))

	if deps.Delivery != nil && deps.CurrentWindow != nil {
		b.router.RegisterCommand(CommandSendToday,
			handlers.NewSendTodayHandler(deps.Delivery, deps.CurrentWindow, b.cfg.AdminIDs, r, log))
	}

	b.router.RegisterCallback(keyboard.CallbackHoroscopeCancel, handlers.NewCancelRequestCallback(deps.Horoscopes, r, log))

	b.dispatcher.RegisterKindHandler(KindText, handlers.NewAnswerHandler(deps.Registration, deps.Profiles, r, log))

	var files handlers.FileFetcher
	if b.telebot != nil {
		files = b.telebot
	}
	b.dispatcher.RegisterKindHandler(KindVoice,
		handlers.NewVoiceHandler(deps.Registration, deps.Profiles, deps.Transcriber, files, r, log))
}

func (b *Bot) registerTelebotHandlers() {
	if b.telebot == nil || b.router == nil {
		return
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnVoice, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
}
