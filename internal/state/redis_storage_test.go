package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

func TestRedisStorage_SaveGetDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger(), 30*time.Minute)
	ctx := context.Background()

	session := &Session{
		UserID:    123,
		Step:      StateAwaitingGender,
		Draft:     Draft{Language: domain.LanguageLT, Name: "Rūta"},
		Seq:       17,
		StartedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, storage.Save(ctx, session))
	assert.Equal(t, 30*time.Minute, mr.TTL("registration:session:123"))

	got, err := storage.Get(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, session.Step, got.Step)
	assert.Equal(t, session.Draft, got.Draft)
	assert.Equal(t, int64(17), got.Seq)
	assert.True(t, session.StartedAt.Equal(got.StartedAt))

	require.NoError(t, storage.Delete(ctx, 123))
	_, err = storage.Get(ctx, 123)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_ExpiresAfterIdleTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger(), time.Minute)
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, &Session{UserID: 1, Step: StateAwaitingName}))
	mr.FastForward(2 * time.Minute)

	_, err := storage.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_List(t *testing.T) {
	client, mr := setupTestRedis(t)
	storage := NewRedisStorage(client, testLogger(), time.Hour)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, storage.Save(ctx, &Session{UserID: id, Step: StateAwaitingName}))
	}
	require.NoError(t, mr.Set("registration:session:99", "{broken"))

	sessions, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestCleaner_RemovesOldSessions(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, storage.Save(ctx, &Session{UserID: 1, StartedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, storage.Save(ctx, &Session{UserID: 2, StartedAt: now.Add(-time.Minute)}))

	cleaner := NewCleaner(storage, testLogger(), 24*time.Hour, time.Minute)
	assert.Equal(t, 1, cleaner.Cleanup(ctx))

	sessions, err := storage.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(2), sessions[0].UserID)
}
