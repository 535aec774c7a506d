// Package health reports whether the bot's dependencies are reachable.
package health

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/telebot.v3"
)

// StatusOK is reported for a passing check.
const StatusOK = "OK"

// DefaultTimeout bounds a single check.
const DefaultTimeout = 3 * time.Second

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Report is the outcome of one Check call.
type Report struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

// Checker aggregates health checks for multiple components.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Checkable
}

// NewChecker instantiates a Checker with the provided logger.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		log:     log,
		timeout: DefaultTimeout,
		checks:  make(map[string]Checkable),
	}
}

// AddCheck registers a checkable component by name.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names lists registered components in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all registered checks concurrently, each bounded by the
// checker timeout.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Checkable, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	var mu sync.Mutex
	report := Report{Healthy: true, Components: make(map[string]string, len(checks))}

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		name, check := name, check
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()

			status := StatusOK
			if err := check.HealthCheck(checkCtx); err != nil {
				status = err.Error()
				c.log.Error("health check failed", slog.String("component", name), slog.Any("error", err))
			}

			mu.Lock()
			report.Components[name] = status
			if status != StatusOK {
				report.Healthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report
}

// DBChecker verifies connectivity to the profile database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker constructs a DBChecker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database to ensure it is reachable.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return sql.ErrConnDone
	}
	return c.db.PingContext(ctx)
}

// Pinger abstracts the subset of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// TelegramChecker reports whether the bot authenticated against the Bot API.
type TelegramChecker struct {
	bot *telebot.Bot
}

// NewTelegramChecker constructs a TelegramChecker.
func NewTelegramChecker(bot *telebot.Bot) *TelegramChecker {
	return &TelegramChecker{bot: bot}
}

// HealthCheck ensures the underlying bot is initialized.
func (c *TelegramChecker) HealthCheck(context.Context) error {
	if c == nil || c.bot == nil || c.bot.Me == nil {
		return errors.New("telegram bot is not initialized")
	}
	return nil
}
