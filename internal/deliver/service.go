package deliver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
	"github.com/Proton-105/horoscope-bot/internal/domain"
	apperrors "github.com/Proton-105/horoscope-bot/internal/errors"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/repository"
	"github.com/Proton-105/horoscope-bot/internal/state"
)

// Policy decides how on-demand requests interact with the daily window.
type Policy string

const (
	// PolicyAlways serves every request subject to the rate gate and leaves
	// the window untouched.
	PolicyAlways Policy = "always"
	// PolicyOncePerWindow applies the scheduler's rule and marks the window.
	PolicyOncePerWindow Policy = "once_per_window"
)

var (
	ErrAlreadyDelivered = errors.New("horoscope already delivered in this window")
	ErrRequestPending   = errors.New("a horoscope request is already in progress")
	ErrRequestCancelled = errors.New("horoscope request was cancelled")
)

type pendingRequest struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Service serves on-demand horoscope requests.
type Service struct {
	profiles repository.ProfileStore
	gen      Generator
	prompts  PromptBuilder
	sender   Sender
	locker   state.Locker
	policy   Policy
	loc      *time.Location
	clock    clock.Clock
	log      *slog.Logger

	mu      sync.Mutex
	pending map[int64]*pendingRequest
}

// NewService wires the on-demand path. Under PolicyOncePerWindow it must
// share locker with the Loop so both paths serialize on the same user.
func NewService(
	profiles repository.ProfileStore,
	gen Generator,
	prompts PromptBuilder,
	sender Sender,
	locker state.Locker,
	policy Policy,
	loc *time.Location,
	clk clock.Clock,
	log *slog.Logger,
) *Service {
	if policy == "" {
		policy = PolicyAlways
	}
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if locker == nil {
		locker = state.NewLocalLocker()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		profiles: profiles,
		gen:      gen,
		prompts:  prompts,
		sender:   sender,
		locker:   locker,
		policy:   policy,
		loc:      loc,
		clock:    clk,
		log:      log.With(slog.String("component", "on_demand")),
		pending:  make(map[int64]*pendingRequest),
	}
}

// RequestNow generates and sends a horoscope to userID right away.
func (s *Service) RequestNow(ctx context.Context, userID int64) (*orchestrator.Result, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, err
		}
		return nil, apperrors.NewPersistenceError("get profile", err)
	}

	now := s.clock.Now()
	w := domain.WindowOf(now, s.loc)
	if s.policy == PolicyOncePerWindow && p.DeliveredIn(w) {
		return nil, ErrAlreadyDelivered
	}

	reqCtx, req, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer s.finish(userID, req)

	if s.policy == PolicyOncePerWindow {
		unlock, err := s.locker.Lock(reqCtx, DeliveryLockKey(userID))
		if err != nil {
			if s.isCancelled(req) {
				return nil, ErrRequestCancelled
			}
			if errors.Is(err, state.ErrStateLocked) {
				return nil, ErrRequestPending
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, apperrors.NewPersistenceError("lock delivery", err)
		}
		defer unlock()

		// The scheduled run may have delivered while we waited.
		if p, err = reloadProfile(ctx, s.profiles, userID); err != nil {
			if errors.Is(err, domain.ErrProfileNotFound) {
				return nil, err
			}
			return nil, apperrors.NewPersistenceError("reload profile", err)
		}
		if p.DeliveredIn(w) {
			return nil, ErrAlreadyDelivered
		}
	}

	prompt, err := s.prompts.Build(p, now.In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	res, err := s.gen.Generate(reqCtx, prompt, p)
	if s.isCancelled(req) {
		s.log.Info("discarding result of cancelled request", slog.Int64("user_id", userID))
		return nil, ErrRequestCancelled
	}
	if err != nil {
		return nil, err
	}

	if err := s.sender.Send(ctx, userID, res.Text); err != nil {
		if errors.Is(err, ErrRecipientUnavailable) {
			if err := s.profiles.SetActive(ctx, userID, false); err != nil {
				s.log.Warn("failed to deactivate unreachable recipient", slog.Int64("user_id", userID), slog.Any("error", err))
			}
		}
		return nil, apperrors.NewTransportError("send horoscope", err)
	}

	if s.policy == PolicyOncePerWindow {
		if _, err := markDelivered(ctx, s.profiles, userID, w); err != nil {
			s.log.Error("sent on demand but failed to mark window", slog.Int64("user_id", userID), slog.Any("error", err))
			return res, apperrors.NewPersistenceError("mark delivered", err)
		}
	}

	return res, nil
}

// CancelPending cancels the user's in-flight request. A result that
// arrives afterwards is discarded. It reports whether a request was pending.
func (s *Service) CancelPending(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.pending[userID]
	if !ok || req.cancelled {
		return false
	}
	req.cancelled = true
	req.cancel()
	return true
}

// CancelAll cancels every in-flight request and returns how many there were.
func (s *Service) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, req := range s.pending {
		if req.cancelled {
			continue
		}
		req.cancelled = true
		req.cancel()
		n++
	}
	return n
}

// Pending reports whether userID has a request in flight.
func (s *Service) Pending(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	return ok
}

func (s *Service) begin(ctx context.Context, userID int64) (context.Context, *pendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[userID]; ok {
		return nil, nil, ErrRequestPending
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req := &pendingRequest{cancel: cancel}
	s.pending[userID] = req
	return reqCtx, req, nil
}

func (s *Service) finish(userID int64, req *pendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req.cancel()
	if s.pending[userID] == req {
		delete(s.pending, userID)
	}
}

func (s *Service) isCancelled(req *pendingRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return req.cancelled
}
