// Package user exposes profile operations used by the chat handlers.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/repository"
)

// Service provides business operations over stored profiles.
type Service struct {
	repo repository.ProfileStore
	log  *slog.Logger
}

// NewService constructs a new Service instance.
func NewService(repo repository.ProfileStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log}
}

// Profile returns the stored profile, or domain.ErrProfileNotFound.
func (s *Service) Profile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, err
		}
		s.logError("profile", userID, err)
		return nil, apperrors.NewPersistenceError("get profile", err)
	}
	return p, nil
}

// Stop pauses scheduled delivery for the user.
func (s *Service) Stop(ctx context.Context, userID int64) error {
	return s.setActive(ctx, userID, false)
}

// Resume re-enables scheduled delivery for the user.
func (s *Service) Resume(ctx context.Context, userID int64) error {
	return s.setActive(ctx, userID, true)
}

func (s *Service) setActive(ctx context.Context, userID int64, active bool) error {
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return err
		}
		s.logError(fmt.Sprintf("set_active_%t", active), userID, err)
		return apperrors.NewPersistenceError("set active", err)
	}

	s.log.Info("profile delivery toggled", slog.Int64("user_id", userID), slog.Bool("active", active))
	return nil
}

// Count returns the number of registered profiles.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		s.logError("count", 0, err)
		return 0, apperrors.NewPersistenceError("count profiles", err)
	}
	return n, nil
}

func (s *Service) logError(operation string, userID int64, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}

	s.log.Error("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("user_id", userID),
		slog.Any("error", err),
	)
}
