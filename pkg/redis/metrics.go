package redis

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
)

var (
	cacheOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "horoscope_cache_operations_total",
		Help: "Profile cache operations by method and outcome.",
	}, []string{"method", "outcome"})

	cacheOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "horoscope_cache_operation_duration_seconds",
		Help:    "Profile cache operation latency.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(cacheOpsTotal, cacheOpDuration)
}

// MetricsClient records hit, miss and error counts for the key-value calls
// of the profile cache.
type MetricsClient struct {
	next *Client
}

// NewMetricsClient wraps next.
func NewMetricsClient(next *Client) *MetricsClient {
	return &MetricsClient{next: next}
}

// Get instruments Client.Get. redis.Nil counts as a miss.
func (m *MetricsClient) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := observe("get", func() error {
		var err error
		value, err = m.next.Get(ctx, key)
		return err
	})
	return value, err
}

// Set instruments Client.Set.
func (m *MetricsClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return observe("set", func() error { return m.next.Set(ctx, key, value, ttl) })
}

// Delete instruments Client.Delete.
func (m *MetricsClient) Delete(ctx context.Context, key string) error {
	return observe("delete", func() error { return m.next.Delete(ctx, key) })
}

func observe(method string, fn func() error) error {
	timer := prometheus.NewTimer(cacheOpDuration.WithLabelValues(method))
	err := fn()
	timer.ObserveDuration()

	outcome := "ok"
	switch {
	case errors.Is(err, redis.Nil):
		outcome = "miss"
	case err != nil:
		outcome = "error"
	}
	cacheOpsTotal.WithLabelValues(method, outcome).Inc()
	return err
}
