package errors

import (
	"errors"
	"sync"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after a run of consecutive failures and lets a single
// probe through once the cooldown has elapsed.
type CircuitBreaker struct {
	mu            sync.Mutex
	clock         clock.Clock
	threshold     int
	cooldown      time.Duration
	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
	onChange      func(from, to State)
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock overrides the time source.
func WithClock(c clock.Clock) BreakerOption {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithStateChange registers a callback invoked on every state change.
func WithStateChange(fn func(from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

func NewCircuitBreaker(threshold int, cooldown time.Duration, opts ...BreakerOption) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	cb := &CircuitBreaker{
		clock:     clock.Real{},
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reserves a call. It returns ErrCircuitOpen while open, or while a
// half-open probe is already running.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.clock.Now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setStateLocked(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.probeInFlight {
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
	}
	return nil
}

// RecordSuccess closes the breaker and clears the failure run.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probeInFlight = false
	if cb.state != StateClosed {
		cb.setStateLocked(StateClosed)
	}
}

// RecordFailure counts a failure; a failed half-open probe reopens at once.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
		cb.tripToOpenLocked()
	}
}

// Release frees a half-open probe slot without recording an outcome.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
}

// Call runs fn when allowed and records its outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}
	if err := cb.Allow(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State reports the current state, moving open to half-open once the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.clock.Now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) tripToOpenLocked() {
	cb.openedAt = cb.clock.Now()
	cb.failures = 0
	cb.probeInFlight = false
	cb.setStateLocked(StateOpen)
}

func (cb *CircuitBreaker) setStateLocked(to State) {
	from := cb.state
	cb.state = to
	if cb.onChange != nil && from != to {
		cb.onChange(from, to)
	}
}
