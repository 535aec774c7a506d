package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	backendPrimary  = "redis"
	backendFallback = "memory"
)

var (
	rateLimitChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "horoscope_ratelimit_checks_total",
		Help: "Rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	rateLimitBackendErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "horoscope_ratelimit_backend_errors_total",
		Help: "Shared backend errors seen by the limiter.",
	})

	rateLimitDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "horoscope_ratelimit_degraded",
		Help: "1 while the limiter serves from process memory.",
	})
)

func init() {
	prometheus.MustRegister(rateLimitChecksTotal, rateLimitBackendErrorsTotal, rateLimitDegraded)
}

// AdaptiveLimiter delegates to a shared limiter and switches to a stricter
// local limiter while the shared one fails. Limits are halved in that mode
// because other instances count independently.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
	degraded atomic.Bool
}

var _ Limiter = (*AdaptiveLimiter)(nil)

// NewAdaptiveLimiter combines a shared and a local limiter.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

// Degraded reports whether the last check was served by the fallback.
func (a *AdaptiveLimiter) Degraded() bool {
	return a.degraded.Load()
}

// Check evaluates the limit using the primary backend.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	result, err := a.primary.Check(ctx, key, limit, window)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		if a.degraded.CompareAndSwap(true, false) {
			rateLimitDegraded.Set(0)
			a.log.Info("rate limiter recovered shared backend")
		}
		return observe(backendPrimary, result, err)
	}

	rateLimitBackendErrorsTotal.Inc()
	if a.degraded.CompareAndSwap(false, true) {
		rateLimitDegraded.Set(1)
		a.log.Warn("rate limiter falling back to process memory", slog.Any("error", err))
	}

	result, err = a.fallback.Check(ctx, key, max(limit/2, 1), window)
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		return result, err
	}
	return observe(backendFallback, result, err)
}

func observe(backend string, result *Result, err error) (*Result, error) {
	label := "allowed"
	if err != nil {
		label = "rejected"
	}
	rateLimitChecksTotal.WithLabelValues(backend, label).Inc()
	return result, err
}
