package state

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Get(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*domain.UserProfile)
	return p, args.Error(1)
}

func (m *mockProfiles) Upsert(ctx context.Context, p *domain.UserProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// memoryProfiles is a minimal profile store for flow tests.
type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[int64]domain.UserProfile
	upserts  int
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{profiles: make(map[int64]domain.UserProfile)}
}

func (s *memoryProfiles) Get(_ context.Context, userID int64) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &p, nil
}

func (s *memoryProfiles) Upsert(_ context.Context, p *domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.ID] = *p
	s.upserts++
	return nil
}
