package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPattern  = "registration:session:%d"
	sessionScanPattern = "registration:session:*"
	defaultSessionTTL  = time.Hour
)

// RedisStorage persists sessions in Redis as JSON. Each save refreshes the
// idle TTL.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client *redis.Client, log *slog.Logger, ttl time.Duration) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &RedisStorage{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

// Get returns the stored session or ErrSessionNotFound when absent.
func (s *RedisStorage) Get(ctx context.Context, userID int64) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}

		s.log.Error("failed to get session from redis", "user_id", userID, "error", err)
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.log.Error("failed to decode session", "user_id", userID, "error", err)
		return nil, err
	}

	return &session, nil
}

// Save stores the session and refreshes its TTL.
func (s *RedisStorage) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.UserID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save session in redis", "user_id", session.UserID, "error", err)
		return err
	}

	return nil
}

// Delete removes the session for the given user.
func (s *RedisStorage) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		s.log.Error("failed to delete session", "user_id", userID, "error", err)
		return err
	}

	return nil
}

// List retrieves every stored session by scanning Redis keys.
func (s *RedisStorage) List(ctx context.Context) ([]*Session, error) {
	var (
		cursor uint64
		result []*Session
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, sessionScanPattern, 100).Result()
		if err != nil {
			s.log.Error("failed to scan sessions", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, err
			}

			var session Session
			if err := json.Unmarshal(data, &session); err != nil {
				s.log.Warn("skipping undecodable session", "key", key, "error", err)
				continue
			}
			result = append(result, &session)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func sessionKey(userID int64) string {
	return fmt.Sprintf(sessionKeyPattern, userID)
}
