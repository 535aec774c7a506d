package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// ProfileStore is the part of the profile store the dialogue needs.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*domain.UserProfile, error)
	Upsert(ctx context.Context, p *domain.UserProfile) error
}

// Machine runs registration dialogues. Every mutating call for a user runs
// under that user's lock, so concurrent answers apply one at a time.
type Machine struct {
	storage         Storage
	profiles        ProfileStore
	locker          Locker
	clock           clock.Clock
	log             *slog.Logger
	defaultLanguage domain.Language
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithDefaultLanguage sets the language used before the user picks one.
func WithDefaultLanguage(lang domain.Language) Option {
	return func(m *Machine) { m.defaultLanguage = lang }
}

// NewMachine creates a registration machine.
func NewMachine(storage Storage, profiles ProfileStore, locker Locker, log *slog.Logger, opts ...Option) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if locker == nil {
		locker = NewLocalLocker()
	}

	m := &Machine{
		storage:         storage,
		profiles:        profiles,
		locker:          locker,
		clock:           clock.Real{},
		log:             log,
		defaultLanguage: domain.LanguageEN,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins registration for a user without a profile. An in-progress
// session is resumed instead of restarted.
func (m *Machine) Start(ctx context.Context, userID int64) (Outcome, error) {
	var out Outcome
	err := m.withLock(ctx, userID, func() error {
		session, err := m.load(ctx, userID)
		if err != nil {
			return err
		}
		if session != nil {
			out = m.outcome(session, EffectPrompt)
			return nil
		}

		existing, err := m.existingProfile(ctx, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = Outcome{Effect: EffectAlreadyRegistered, Language: existing.Language, Profile: existing}
			return nil
		}

		session, err = m.begin(ctx, userID, false)
		if err != nil {
			return err
		}
		out = m.outcome(session, EffectPrompt)
		return nil
	})
	return out, err
}

// Reset starts a fresh registration. An existing profile stays in place and
// is only replaced when the new registration completes.
func (m *Machine) Reset(ctx context.Context, userID int64) (Outcome, error) {
	var out Outcome
	err := m.withLock(ctx, userID, func() error {
		existing, err := m.existingProfile(ctx, userID)
		if err != nil {
			return err
		}

		session, err := m.begin(ctx, userID, existing != nil)
		if err != nil {
			return err
		}
		out = m.outcome(session, EffectPrompt)
		if existing != nil {
			out.Language = existing.Language
		}
		return nil
	})
	return out, err
}

// Submit applies one answer to the user's session.
func (m *Machine) Submit(ctx context.Context, userID int64, in Input) (Outcome, error) {
	var out Outcome
	err := m.withLock(ctx, userID, func() error {
		session, err := m.load(ctx, userID)
		if err != nil {
			return err
		}
		if session == nil {
			out = Outcome{Effect: EffectNoSession, Language: m.defaultLanguage}
			return nil
		}

		if in.MessageID != 0 && in.MessageID <= session.Seq {
			out = m.outcome(session, EffectReprompt)
			out.Duplicate = true
			return nil
		}

		now := m.clock.Now()
		next, effect, failure := Transition(*session, in.Text, now)
		next.UpdatedAt = now
		if in.MessageID != 0 {
			next.Seq = in.MessageID
		}

		switch effect {
		case EffectReprompt:
			if err := m.save(ctx, &next); err != nil {
				return err
			}
			out = m.outcome(&next, EffectReprompt)
			out.Failure = failure
			return nil
		case EffectComplete:
			p, err := m.commit(ctx, session, &next)
			if err != nil {
				return err
			}
			out = m.outcome(&next, EffectComplete)
			out.Profile = p
			return nil
		default:
			if err := m.save(ctx, &next); err != nil {
				return err
			}
			transitionRecorder(string(session.Step), string(next.Step))
			out = m.outcome(&next, EffectPrompt)
			return nil
		}
	})
	return out, err
}

// Cancel discards the user's session without writing a profile.
func (m *Machine) Cancel(ctx context.Context, userID int64) (Outcome, error) {
	var out Outcome
	err := m.withLock(ctx, userID, func() error {
		session, err := m.load(ctx, userID)
		if err != nil {
			return err
		}
		if session == nil {
			out = Outcome{Effect: EffectNoSession, Language: m.defaultLanguage}
			return nil
		}

		if err := m.storage.Delete(ctx, userID); err != nil {
			return apperrors.NewPersistenceError("delete session", err)
		}
		transitionRecorder(string(session.Step), "cancelled")
		out = m.outcome(session, EffectCancelled)
		return nil
	})
	return out, err
}

// Session returns the in-progress session or ErrSessionNotFound.
func (m *Machine) Session(ctx context.Context, userID int64) (*Session, error) {
	return m.storage.Get(ctx, userID)
}

// Sessions lists every in-progress session.
func (m *Machine) Sessions(ctx context.Context) ([]*Session, error) {
	return m.storage.List(ctx)
}

func (m *Machine) begin(ctx context.Context, userID int64, reset bool) (*Session, error) {
	now := m.clock.Now()
	session := &Session{
		UserID:    userID,
		Step:      StateAwaitingLanguage,
		Reset:     reset,
		StartedAt: now,
		UpdatedAt: now,
	}

	if err := m.save(ctx, session); err != nil {
		return nil, err
	}
	transitionRecorder("", string(StateAwaitingLanguage))
	m.log.Info("registration started", "user_id", userID, "reset", reset)
	return session, nil
}

// commit writes the profile and only then drops the session. A failed write
// keeps the previous session so a redelivered answer can retry.
func (m *Machine) commit(ctx context.Context, prev, next *Session) (*domain.UserProfile, error) {
	now := m.clock.Now()
	p := &domain.UserProfile{
		ID:         next.UserID,
		Name:       next.Draft.Name,
		BirthDate:  next.Draft.BirthDate,
		Language:   next.Draft.Language,
		Gender:     next.Draft.Gender,
		Profession: next.Draft.Profession,
		Hobbies:    next.Draft.Hobbies,
		CreatedAt:  now,
		UpdatedAt:  now,
		Active:     true,
	}

	if next.Reset {
		existing, err := m.existingProfile(ctx, next.UserID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			p.LastDeliveryDate = existing.LastDeliveryDate
			p.Active = existing.Active
		}
	}

	if err := m.profiles.Upsert(ctx, p); err != nil {
		m.log.Error("failed to commit profile", "user_id", p.ID, "error", err)
		return nil, apperrors.NewPersistenceError("commit profile", err)
	}

	if err := m.storage.Delete(ctx, next.UserID); err != nil {
		m.log.Warn("profile committed but session not removed", "user_id", p.ID, "error", err)
	}

	transitionRecorder(string(prev.Step), string(StateComplete))
	m.log.Info("registration completed", "user_id", p.ID, "reset", next.Reset)
	return p, nil
}

func (m *Machine) withLock(ctx context.Context, userID int64, fn func() error) error {
	unlock, err := m.locker.Lock(ctx, fmt.Sprintf("registration:%d", userID))
	if err != nil {
		return err
	}
	defer unlock()

	return fn()
}

func (m *Machine) load(ctx context.Context, userID int64) (*Session, error) {
	session, err := m.storage.Get(ctx, userID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("load session", err)
	}
	return session, nil
}

func (m *Machine) save(ctx context.Context, session *Session) error {
	if err := m.storage.Save(ctx, session); err != nil {
		return apperrors.NewPersistenceError("save session", err)
	}
	return nil
}

func (m *Machine) existingProfile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	p, err := m.profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("load profile", err)
	}
	return p, nil
}

func (m *Machine) outcome(session *Session, effect Effect) Outcome {
	lang := session.Draft.Language
	if lang == "" {
		lang = m.defaultLanguage
	}
	return Outcome{State: session.Step, Effect: effect, Language: lang}
}
