// Package deliver fans generated horoscopes out to subscribers: the daily
// loop, its supervisor and on-demand requests.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
	"github.com/Proton-105/horoscope-bot/internal/orchestrator"
	"github.com/Proton-105/horoscope-bot/internal/provider"
	"github.com/Proton-105/horoscope-bot/internal/repository"
)

// markTimeout bounds the window write that follows a successful send.
const markTimeout = 5 * time.Second

// ErrRecipientUnavailable marks a recipient that can no longer be reached,
// for example a user who blocked the bot.
var ErrRecipientUnavailable = errors.New("recipient unavailable")

// Sender delivers text to a user.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Generator produces horoscope text.
type Generator interface {
	Generate(ctx context.Context, prompt provider.Prompt, p *domain.UserProfile, opts ...orchestrator.GenerateOption) (*orchestrator.Result, error)
}

// PromptBuilder renders the prompt for a profile and day.
type PromptBuilder interface {
	Build(p *domain.UserProfile, day time.Time) (provider.Prompt, error)
}

// freshReader is implemented by caching stores that can bypass the cache.
type freshReader interface {
	Fresh(ctx context.Context, userID int64) (*domain.UserProfile, error)
}

// DeliveryLockKey names the lock serializing deliveries to one user.
func DeliveryLockKey(userID int64) string {
	return fmt.Sprintf("delivery:%d", userID)
}

func reloadProfile(ctx context.Context, profiles repository.ProfileStore, userID int64) (*domain.UserProfile, error) {
	if fr, ok := profiles.(freshReader); ok {
		return fr.Fresh(ctx, userID)
	}
	return profiles.Get(ctx, userID)
}

// markDelivered records w for userID once the message is out. The write
// ignores cancellation of ctx: a sent horoscope must not be sent again.
func markDelivered(ctx context.Context, profiles repository.ProfileStore, userID int64, w domain.Window) (bool, error) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	return profiles.MarkDelivered(markCtx, userID, w)
}
