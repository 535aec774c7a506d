package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/Proton-105/horoscope-bot/pkg/config"
)

// Gemini generates text through the Google Gen AI SDK.
type Gemini struct {
	name        string
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Gemini{
		name:        "gemini/" + cfg.Model,
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (g *Gemini) Name() string { return g.name }

// Generate performs one GenerateContent call.
func (g *Gemini) Generate(ctx context.Context, prompt Prompt) (string, error) {
	temperature := g.temperature
	if prompt.Temperature > 0 {
		temperature = prompt.Temperature
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(firstPositive(prompt.MaxTokens, g.maxTokens)),
	}
	if prompt.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), cfg)
	if err != nil {
		return "", g.classify(ctx, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &Error{Provider: g.name, Kind: KindContentRejected, Err: fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", &Error{Provider: g.name, Kind: KindContentRejected, Err: errors.New("candidate blocked by safety filter")}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &Error{Provider: g.name, Kind: KindServer, Err: errors.New("empty completion")}
	}
	return text, nil
}

func (g *Gemini) classify(ctx context.Context, err error) error {
	if code, ok := apiErrorCode(err); ok {
		return &Error{Provider: g.name, Kind: KindForStatus(code), Status: code, Err: err}
	}
	return &Error{Provider: g.name, Kind: KindOf(ctxErr(ctx, err)), Err: err}
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
