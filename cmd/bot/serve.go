package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/horoscope-bot/internal/admin"
	"github.com/Proton-105/horoscope-bot/internal/bot"
	"github.com/Proton-105/horoscope-bot/internal/bot/handlers"
	"github.com/Proton-105/horoscope-bot/internal/deliver"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/health"
	"github.com/Proton-105/horoscope-bot/internal/i18n"
	"github.com/Proton-105/horoscope-bot/internal/idempotency"
	"github.com/Proton-105/horoscope-bot/internal/jobs"
	jobhandlers "github.com/Proton-105/horoscope-bot/internal/jobs/handlers"
	"github.com/Proton-105/horoscope-bot/internal/lifecycle"
	"github.com/Proton-105/horoscope-bot/internal/middleware"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/ratelimit"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/internal/transcribe"
	"github.com/Proton-105/horoscope-bot/internal/user"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/graceful"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
	"github.com/Proton-105/horoscope-bot/pkg/metrics"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the delivery scheduler and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	cfg := c.cfg
	log := c.log
	log.Info("starting horoscope bot",
		slog.String("env", cfg.AppEnv),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("scheduler", cfg.Delivery.Scheduler),
	)

	if err := c.migrate(ctx); err != nil {
		return err
	}

	config.Watch(c.v, log, func(next *config.Config) {
		c.level.Set(logger.ParseLevel(next.Logger.Level))
	})

	shutdown := lifecycle.NewShutdown(log)

	catalog, err := loadCatalog(cfg.Bot)
	if err != nil {
		return err
	}

	rdb := c.redis.Client
	machine := state.NewMachine(
		state.NewRedisStorage(rdb, log, cfg.Session.TTL),
		c.profiles,
		state.NewRedisLocker(rdb, log, cfg.Session.LockTTL, cfg.Session.LockTTL),
		log,
		state.WithDefaultLanguage(c.defaultLanguage()),
	)
	sessionCleaner := state.NewCleaner(state.NewRedisStorage(rdb, log, cfg.Session.TTL), log, cfg.Session.MaxAge, cfg.Session.CleanupInterval)

	tb, err := bot.NewTelebot(cfg.Bot, log)
	if err != nil {
		return err
	}
	sender := bot.NewSender(tb, log)

	deliveryLocks := state.NewRedisLocker(rdb, log, deliveryLockTTL(cfg.Generation), time.Second)
	loop := c.newLoop(sender, deliveryLocks)
	supervisor, err := c.newSupervisor(loop)
	if err != nil {
		return err
	}
	horoscopes := deliver.NewService(
		c.profiles,
		c.orch,
		c.prompts,
		sender,
		deliveryLocks,
		deliver.Policy(cfg.Delivery.OnDemandPolicy),
		c.loc,
		nil,
		log,
	)

	var transcriber transcribe.Transcriber
	if cfg.Transcription.Enabled {
		speech, err := transcribe.NewSpeech(ctx, cfg.Transcription, log)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, speech.Close)
		transcriber = speech
	}

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)
	idem := idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log)

	rules, err := ratelimit.NewRules(cfg.RateLimit)
	if err != nil {
		return err
	}
	var rateLimit *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimit = middleware.NewRateLimitMiddleware(c.limiter, rules, handlers.NewRenderer(catalog), log)
	}

	b, err := bot.New(tb, cfg.Bot, log, bot.Deps{
		Registration:  machine,
		Sessions:      machine,
		Profiles:      user.NewService(c.profiles, log),
		Horoscopes:    horoscopes,
		Delivery:      supervisor,
		CurrentWindow: loop.CurrentWindow,
		Transcriber:   transcriber,
		Catalog:       catalog,
		Idempotency:   idem,
		RateLimit:     rateLimit,
		ErrHandler:    errHandler,
	})
	if err != nil {
		return err
	}

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(c.db))
	checker.AddCheck("redis", health.NewRedisChecker(rdb))
	checker.AddCheck("telegram", health.NewTelegramChecker(tb))
	probes := lifecycle.NewProbes(checker, log)

	adminOpts := admin.Options{
		Token:         cfg.Server.AdminToken,
		Probes:        probes,
		Runner:        supervisor,
		Runs:          c.runs,
		CurrentWindow: loop.CurrentWindow,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Delivery.Scheduler == "asynq" {
		queue := jobs.NewManager(c.asynqOpt(), log)
		shutdown.RegisterCloser("jobs_client", queue.Close)
		adminOpts.Queue = queue

		worker := jobs.NewWorker(c.asynqOpt(), jobs.WorkerConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout}, log)
		worker.RegisterHandler(jobs.TaskTypeDailyDelivery, jobhandlers.NewDeliveryHandler(loop, log))
		worker.RegisterHandler(jobs.TaskTypeSessionCleanup, jobhandlers.NewSessionCleanupHandler(sessionCleaner, log))

		hour, minute, err := cfg.Delivery.FireAt()
		if err != nil {
			return err
		}
		scheduler := jobs.NewScheduler(c.asynqOpt(), jobs.ScheduleConfig{
			Location:        c.loc,
			Hour:            hour,
			Minute:          minute,
			CleanupInterval: cfg.Session.CleanupInterval,
		}, log)
		if err := scheduler.RegisterTasks(); err != nil {
			return fmt.Errorf("register scheduled tasks: %w", err)
		}

		if err := worker.Run(); err != nil {
			return fmt.Errorf("start jobs worker: %w", err)
		}
		scheduler.Run()
		shutdown.Register("jobs", func(context.Context) error {
			scheduler.Shutdown()
			worker.Shutdown()
			return nil
		})
	} else {
		g.Go(func() error { return supervisor.Run(gctx) })
		g.Go(func() error { sessionCleaner.Run(gctx); return nil })
	}

	idemCleaner := idempotency.NewCleaner(rdb, log, 0, middleware.UpdateTTL)
	limitCleaner := ratelimit.NewCleaner(rdb, log, cfg.Session.CleanupInterval,
		max(rules.MaxWindow(), cfg.Generation.MinInterval), ratelimit.WithMemory(c.localLimit))
	collector := metrics.NewStateCollector(machine, 0)
	g.Go(func() error { idemCleaner.Run(gctx); return nil })
	g.Go(func() error { limitCleaner.Run(gctx); return nil })
	g.Go(func() error { collector.Run(gctx); return nil })

	server := graceful.NewServer(log, &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: admin.NewRouter(adminOpts, log),
	}, cfg.Server.ShutdownTimeout)
	g.Go(func() error { return server.ListenAndServe(gctx) })

	g.Go(func() error {
		b.Start()
		return nil
	})
	shutdown.Register("telegram", func(context.Context) error {
		probes.Drain()
		horoscopes.CancelAll()
		b.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return shutdown.Execute(shutdownCtx)
	})

	log.Info("horoscope bot started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("horoscope bot stopped")
	return nil
}

// deliveryLockSlack covers reloading, sending and marking around generation.
const deliveryLockSlack = time.Minute

// deliveryLockTTL outlives the longest generation, fallback included.
func deliveryLockTTL(cfg config.GenerationConfig) time.Duration {
	return orchestrator.ConfigFrom(cfg).MaxDuration() + deliveryLockSlack
}

func loadCatalog(cfg config.BotConfig) (*i18n.Manager, error) {
	if cfg.Locales != "" {
		return i18n.LoadFromDir(cfg.Locales, cfg.DefaultLanguage)
	}
	return i18n.Load(cfg.DefaultLanguage)
}
