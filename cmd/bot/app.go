package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/spf13/viper"

	"github.com/Proton-105/horoscope-bot/internal/database"
	"github.com/Proton-105/horoscope-bot/internal/deliver"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/profile"
	"github.com/Proton-105/horoscope-bot/internal/prompt"
	"github.com/Proton-105/horoscope-bot/internal/provider"
	"github.com/Proton-105/horoscope-bot/internal/ratelimit"
	"github.com/Proton-105/horoscope-bot/internal/repository"
	"github.com/Proton-105/horoscope-bot/internal/state"
	"github.com/Proton-105/horoscope-bot/internal/usercache"
	"github.com/Proton-105/horoscope-bot/pkg/config"
	"github.com/Proton-105/horoscope-bot/pkg/logger"
	"github.com/Proton-105/horoscope-bot/pkg/metrics"
	"github.com/Proton-105/horoscope-bot/pkg/redis"
)

// core holds the components shared by every subcommand.
type core struct {
	cfg   *config.Config
	v     *viper.Viper
	log   *slog.Logger
	level *slog.LevelVar

	db         *sql.DB
	redis      *redis.Client
	profiles   repository.ProfileStore
	runs       repository.RunStore
	limiter    ratelimit.Limiter
	localLimit *ratelimit.MemoryLimiter
	orch       *orchestrator.Orchestrator
	prompts    *prompt.Builder
	loc        *time.Location

	closers []func() error
}

func bootstrap(ctx context.Context) (*core, error) {
	cfg, v, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.AppEnv,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
	}

	log, level := logger.New(cfg.Logger, cfg.Sentry.Enabled)
	slog.SetDefault(log)

	state.RegisterTransitionRecorder(metrics.RecordStateTransition)
	apperrors.RegisterErrorRecorder(metrics.RecordError)

	c := &core{cfg: cfg, v: v, log: log, level: level}
	if cfg.Sentry.Enabled {
		c.closers = append(c.closers, func() error {
			sentry.Flush(2 * time.Second)
			return nil
		})
	}

	loc, err := cfg.Delivery.Location()
	if err != nil {
		return nil, err
	}
	c.loc = loc

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	c.db = db
	c.closers = append(c.closers, db.Close)

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		c.close()
		return nil, err
	}
	c.redis = rc
	c.closers = append(c.closers, rc.Close)

	c.runs = repository.NewRunRepository(db, log)
	c.profiles = usercache.NewStore(
		repository.NewProfileRepository(db, log),
		usercache.NewCache(redis.NewMetricsClient(rc)),
		usercache.DefaultTTL,
		log,
	)

	c.localLimit = ratelimit.NewMemoryLimiter(log)
	c.limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(rc.Client, log), c.localLimit, log)

	if err := c.buildGeneration(ctx); err != nil {
		c.close()
		return nil, err
	}

	return c, nil
}

func (c *core) buildGeneration(ctx context.Context) error {
	gen := c.cfg.Generation
	httpClient := &http.Client{Timeout: gen.Timeout}

	primary, err := provider.New(ctx, gen.Primary, httpClient)
	if err != nil {
		return fmt.Errorf("primary provider: %w", err)
	}

	var secondary provider.Provider
	if gen.Secondary.Enabled() {
		secondary, err = provider.New(ctx, gen.Secondary, httpClient)
		if err != nil {
			return fmt.Errorf("secondary provider: %w", err)
		}
	}

	orch, err := orchestrator.New(primary, secondary, c.limiter, orchestrator.ConfigFrom(gen), c.log)
	if err != nil {
		return err
	}
	c.orch = orch

	prompts, err := prompt.NewBuilder(gen.Primary.MaxTokens, gen.Primary.Temperature)
	if err != nil {
		return fmt.Errorf("load prompt templates: %w", err)
	}
	c.prompts = prompts
	return nil
}

func (c *core) migrate(ctx context.Context) error {
	applied, err := database.NewMigrator(c.db, c.log.With(slog.String("component", "migrator"))).ApplyEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	c.log.Info("database migrations applied", slog.Int("applied", len(applied)))
	return nil
}

func (c *core) newLoop(sender deliver.Sender, locker state.Locker) *deliver.Loop {
	return deliver.NewLoop(
		c.profiles,
		c.orch,
		c.prompts,
		sender,
		locker,
		deliver.Config{
			Concurrency: c.cfg.Delivery.Concurrency,
			SendRate:    c.cfg.Delivery.SendRate,
			Location:    c.loc,
		},
		c.log,
		deliver.WithRunStore(c.runs),
	)
}

func (c *core) newSupervisor(loop *deliver.Loop) (*deliver.Supervisor, error) {
	hour, minute, err := c.cfg.Delivery.FireAt()
	if err != nil {
		return nil, err
	}
	return deliver.NewSupervisor(loop, nil, c.loc, hour, minute, c.log), nil
}

func (c *core) asynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	}
}

func (c *core) defaultLanguage() domain.Language {
	lang, err := profile.ParseLanguage(c.cfg.Bot.DefaultLanguage)
	if err != nil {
		return domain.LanguageLT
	}
	return lang
}

func (c *core) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && c.log != nil {
			c.log.Warn("close failed", slog.Any("error", err))
		}
	}
	c.closers = nil
}
