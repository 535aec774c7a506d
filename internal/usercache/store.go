package usercache

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/repository"
)

// DefaultTTL bounds how long a cached profile may lag the database.
const DefaultTTL = 10 * time.Minute

// Store is a read-through cache over a repository.ProfileStore. Every write
// goes to the database first and then drops the cached entry.
type Store struct {
	next  repository.ProfileStore
	cache *Cache
	ttl   time.Duration
	log   *slog.Logger
}

var _ repository.ProfileStore = (*Store)(nil)

// NewStore wraps next with cache.
func NewStore(next repository.ProfileStore, cache *Cache, ttl time.Duration, log *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{next: next, cache: cache, ttl: ttl, log: log}
}

func (s *Store) Get(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.log.Warn("profile cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	if cached != nil {
		return cached, nil
	}

	p, err := s.next.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, p, s.ttl); err != nil {
		s.log.Warn("profile cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return p, nil
}

func (s *Store) Upsert(ctx context.Context, p *domain.UserProfile) error {
	if err := s.next.Upsert(ctx, p); err != nil {
		return err
	}
	s.invalidate(ctx, p.ID)
	return nil
}

func (s *Store) ListEligibleForWindow(ctx context.Context, w domain.Window) ([]*domain.UserProfile, error) {
	return s.next.ListEligibleForWindow(ctx, w)
}

func (s *Store) MarkDelivered(ctx context.Context, userID int64, w domain.Window) (bool, error) {
	marked, err := s.next.MarkDelivered(ctx, userID, w)
	if err != nil {
		return false, err
	}
	if marked {
		s.invalidate(ctx, userID)
	}
	return marked, nil
}

func (s *Store) SetActive(ctx context.Context, userID int64, active bool) error {
	if err := s.next.SetActive(ctx, userID, active); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.next.Count(ctx)
}

// Fresh bypasses the cache. The delivery loop uses it to re-read a profile
// under its lock.
func (s *Store) Fresh(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	return s.next.Get(ctx, userID)
}

func (s *Store) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("profile cache invalidation failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
