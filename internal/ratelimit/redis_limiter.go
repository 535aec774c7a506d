package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

// slidingWindow trims the window, admits the request when there is room and
// reports {allowed, count, oldest score}. Rejected requests are not stored.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', KEYS[1])
local admitted = 0
if count < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  redis.call('PEXPIRE', KEYS[1], window)
  count = count + 1
  admitted = 1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then first = tonumber(oldest[2]) end
return {admitted, count, first}
`)

// RedisLimiter implements Limiter with one sorted set per key, so limits
// hold across bot instances.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
	clock  clock.Clock
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed Limiter implementation.
func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	return NewRedisLimiterWithClock(client, log, clock.Real{})
}

// NewRedisLimiterWithClock creates a Redis-backed Limiter scoring requests
// with clk.
func NewRedisLimiterWithClock(client *redis.Client, log *slog.Logger, clk clock.Clock) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &RedisLimiter{
		client: client,
		log:    log,
		clock:  clk,
	}
}

// Check evaluates the sliding window for key atomically.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := l.clock.Now()
	if limit <= 0 {
		return &Result{ResetAt: now.Add(window)}, ErrLimitExceeded
	}

	raw, err := slidingWindow.Run(ctx, l.client,
		[]string{keyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		l.log.Error("rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limiter script returned %d values", len(raw))
	}

	allowed := raw[0] == 1
	result := &Result{
		Allowed:   allowed,
		Remaining: max(limit-int(raw[1]), 0),
		ResetAt:   time.UnixMilli(raw[2]).UTC().Add(window),
	}

	if !allowed {
		return result, ErrLimitExceeded
	}
	return result, nil
}
