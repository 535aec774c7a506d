// Package state runs the registration dialogue: an ordered, resumable and
// cancelable sequence of questions that ends in a committed profile.
package state

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrSessionNotFound indicates that no registration is in progress.
var ErrSessionNotFound = errors.New("registration session not found")

// Storage persists registration sessions.
type Storage interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, userID int64) error
	List(ctx context.Context) ([]*Session, error)
}

// MemoryStorage keeps sessions in process memory. It suits single-instance
// deployments and tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[int64]Session)}
}

func (s *MemoryStorage) Get(_ context.Context, userID int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemoryStorage) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.UserID] = *session
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

func (s *MemoryStorage) List(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		session := session
		out = append(out, &session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
