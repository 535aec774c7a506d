// Package ratelimit gates inbound updates and generation requests with
// sliding-window limits kept in Redis or in process memory.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const keyPrefix = "ratelimit:"

// GlobalKey is shared by every update.
const GlobalKey = "global"

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long until the key admits another request.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r == nil || r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Limiter admits at most limit requests per key within any window.
// Rejected requests are not recorded.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// GenerationKey gates horoscope generation for a user.
func GenerationKey(userID int64) string {
	return fmt.Sprintf("generate:%d", userID)
}

// UserKey counts every update from a user.
func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// CommandKey counts one command from a user.
func CommandKey(userID int64, command string) string {
	return fmt.Sprintf("user:%d:%s", userID, command)
}
