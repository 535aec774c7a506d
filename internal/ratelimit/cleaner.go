package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

const scanBatch = 100

// Cleaner trims rate-limit history older than the longest configured
// window. Keys written by RedisLimiter also expire on their own; the sweep
// covers keys whose window shrank in config and the local fallback.
type Cleaner struct {
	client    *redis.Client
	memory    *MemoryLimiter
	log       *slog.Logger
	interval  time.Duration
	maxWindow time.Duration
	clock     clock.Clock
}

// CleanerOption customises a Cleaner.
type CleanerOption func(*Cleaner)

// WithMemory also sweeps the local fallback limiter.
func WithMemory(m *MemoryLimiter) CleanerOption {
	return func(c *Cleaner) { c.memory = m }
}

// WithCleanerClock overrides the time source.
func WithCleanerClock(clk clock.Clock) CleanerOption {
	return func(c *Cleaner) { c.clock = clk }
}

// NewCleaner constructs a Cleaner. client may be nil when only memory is swept.
func NewCleaner(client *redis.Client, log *slog.Logger, interval, maxWindow time.Duration, opts ...CleanerOption) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	c := &Cleaner{
		client:    client,
		log:       log,
		interval:  interval,
		maxWindow: maxWindow,
		clock:     clock.Real{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run sweeps every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 || c.maxWindow <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Cleanup(ctx); removed > 0 {
				c.log.Debug("rate limit history trimmed", slog.Int("keys", removed))
			}
		}
	}
}

// Cleanup trims expired entries once and returns how many keys were dropped.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	if c.maxWindow <= 0 {
		return 0
	}

	removed := 0
	if c.memory != nil {
		removed += c.memory.Cleanup(c.maxWindow)
	}
	if c.client == nil {
		return removed
	}

	cutoff := "(" + strconv.FormatInt(c.clock.Now().Add(-c.maxWindow).UnixMilli(), 10)
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := c.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
			c.log.Warn("rate limit cleanup failed", slog.String("key", key), slog.Any("error", err))
			continue
		}
		left, err := c.client.ZCard(ctx, key).Result()
		if err != nil || left > 0 {
			continue
		}
		if n, err := c.client.Del(ctx, key).Result(); err == nil {
			removed += int(n)
		}
	}
	if err := iter.Err(); err != nil && ctx.Err() == nil {
		c.log.Warn("rate limit scan failed", slog.Any("error", err))
	}

	return removed
}
