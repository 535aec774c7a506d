package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

// DefaultLockTTL bounds how long a crashed handler can hold a key.
const DefaultLockTTL = 5 * time.Minute

type Operation func(ctx context.Context) error

// Result reports whether the operation ran or was recognized as a repeat.
type Result struct {
	Duplicate bool
}

type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: DefaultLockTTL,
		log:     log,
	}
}

// Execute runs fn at most once per key within ttl. A failed operation
// releases the key so a redelivered update is processed again.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	status, err := m.store.Claim(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusNew:
	case StatusCompleted:
		m.log.Debug("duplicate update skipped", slog.String("key", key))
		return &Result{Duplicate: true}, nil
	default:
		return nil, ErrRequestInProgress
	}

	if err := fn(ctx); err != nil {
		if releaseErr := m.store.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			m.log.Warn("failed to release idempotency key", slog.String("key", key), slog.Any("error", releaseErr))
		}
		return nil, err
	}

	if err := m.store.Complete(context.WithoutCancel(ctx), key, ttl); err != nil {
		m.log.Warn("failed to complete idempotency key", slog.String("key", key), slog.Any("error", err))
	}

	return &Result{}, nil
}
