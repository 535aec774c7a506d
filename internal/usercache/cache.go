// Package usercache keeps completed profiles in Redis in front of the SQL store.
package usercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// KV is the subset of the Redis client used by the cache. Both
// redis.Client and redis.MetricsClient from pkg/redis satisfy it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache provides Redis-backed caching for user profiles.
type Cache struct {
	client KV
}

// NewCache constructs a profile cache backed by the provided Redis client.
func NewCache(client KV) *Cache {
	return &Cache{client: client}
}

// Get fetches a cached profile. A miss returns nil without error.
func (c *Cache) Get(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var p domain.UserProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &p, nil
}

// Set stores the profile in cache for the provided TTL.
func (c *Cache) Set(ctx context.Context, p *domain.UserProfile, ttl time.Duration) error {
	if c == nil || c.client == nil || p == nil {
		return nil
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(p.ID), payload, ttl); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

// Invalidate removes the cached profile entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("delete cached profile: %w", err)
	}

	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("profile:%d", userID)
}
