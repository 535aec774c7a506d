// Package redis connects to the Redis instance shared by sessions, locks,
// rate limits, idempotency keys and the profile cache.
package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultPoolSize    = 10
	defaultDialTimeout = 5 * time.Second
)

// Config defines connection parameters for initializing the Redis client.
type Config struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db" validate:"gte=0"`
	PoolSize        int           `mapstructure:"pool_size" validate:"gte=0"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// Options converts cfg into go-redis options, filling unset pool values.
func (cfg Config) Options() *redis.Options {
	opts := &redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.IdleTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	return opts
}

// Client adds string helpers on top of go-redis. Packages that need the
// full command set use the embedded *redis.Client directly.
type Client struct {
	*redis.Client
}

// New connects with cfg and fails when the server does not answer PING.
func New(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(cfg.Options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return &Client{rdb}, nil
}

// Get returns the string stored at key or redis.Nil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// Set stores value under key; a zero ttl keeps it forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// Ping reports whether the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
