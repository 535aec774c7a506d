package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the processing state recorded for a key.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

const keyPrefix = "idempotency:"

// Store records which updates were claimed and which finished.
type Store interface {
	// Claim marks key as processing when nobody holds it yet. It returns
	// StatusNew on success and the recorded status otherwise.
	Claim(ctx context.Context, key string, lockTTL time.Duration) (Status, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

func (s *RedisStore) Claim(ctx context.Context, key string, lockTTL time.Duration) (Status, error) {
	redisKey := recordKey(key)
	acquired, err := s.client.SetNX(ctx, redisKey, string(StatusProcessing), lockTTL).Result()
	if err != nil {
		s.log.Error("failed to claim idempotency key", slog.String("key", key), slog.Any("error", err))
		return "", err
	}
	if acquired {
		return StatusNew, nil
	}

	value, err := s.client.Get(ctx, redisKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between the two calls; let the caller retry the claim.
		return StatusProcessing, nil
	case err != nil:
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return "", err
	}

	return Status(value), nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, recordKey(key), string(StatusCompleted), ttl).Err(); err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, recordKey(key)).Err(); err != nil {
		s.log.Error("failed to release idempotency key", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}

func recordKey(key string) string {
	return fmt.Sprintf("%s%s", keyPrefix, key)
}
