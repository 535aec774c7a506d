package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCleanInterval = time.Hour
	cleanBatch           = 100
)

// Cleaner deletes records that lost their expiry or carry one longer than
// maxTTL, which happens when UpdateTTL is lowered between deploys.
type Cleaner struct {
	client   *redis.Client
	log      *slog.Logger
	interval time.Duration
	maxTTL   time.Duration
}

// NewCleaner builds a Cleaner; a non-positive interval sweeps hourly.
func NewCleaner(client *redis.Client, log *slog.Logger, interval, maxTTL time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = defaultCleanInterval
	}
	return &Cleaner{client: client, log: log, interval: interval, maxTTL: maxTTL}
}

// Run sweeps every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil {
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
				c.log.Info("idempotency keys cleaned", slog.Int("removed", removed))
			}
		}
	}
}

// Cleanup runs one sweep and returns the number of deleted keys.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	removed := 0
	batch := make([]string, 0, cleanBatch)

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", cleanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cleanBatch {
			removed += c.sweep(ctx, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		removed += c.sweep(ctx, batch)
	}
	if err := iter.Err(); err != nil {
		c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
	}
	return removed
}

// sweep reads the TTLs of keys in one round trip and deletes the stale ones.
func (c *Cleaner) sweep(ctx context.Context, keys []string) int {
	ttls := make([]*redis.DurationCmd, len(keys))
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			ttls[i] = p.TTL(ctx, key)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("idempotency ttl lookup failed", slog.Any("error", err))
		return 0
	}

	var stale []string
	for i, cmd := range ttls {
		ttl := cmd.Val()
		if ttl == -1 || (c.maxTTL > 0 && ttl > c.maxTTL) {
			stale = append(stale, keys[i])
		}
	}
	if len(stale) == 0 {
		return 0
	}

	n, err := c.client.Del(ctx, stale...).Result()
	if err != nil {
		c.log.Warn("failed to delete stale idempotency keys", slog.Int("keys", len(stale)), slog.Any("error", err))
		return 0
	}
	return int(n)
}
