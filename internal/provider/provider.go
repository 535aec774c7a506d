// Package provider adapts remote generative-text services to one interface
// and classifies their failures.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Proton-105/horoscope-bot/pkg/config"
)

// Prompt is a rendered generation request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Provider generates text for a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Kind classifies provider failures.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindRateLimited     Kind = "rate_limited"
	KindServer          Kind = "server"
	KindTransport       Kind = "transport"
	KindAuth            Kind = "auth"
	KindContentRejected Kind = "content_rejected"
	KindBadRequest      Kind = "bad_request"
)

// Transient reports whether a retry may succeed.
func (k Kind) Transient() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServer, KindTransport:
		return true
	default:
		return false
	}
}

// Error is a classified provider failure.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Context deadline errors count as timeouts and
// unknown errors as transport failures.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}

// KindForStatus maps an HTTP status onto a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindBadRequest
	}
}

// New builds the provider described by cfg.
func New(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg, httpClient), nil
	case "gemini":
		return NewGemini(ctx, cfg, httpClient)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
