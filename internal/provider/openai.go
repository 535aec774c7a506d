package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Proton-105/horoscope-bot/pkg/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	name        string
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float32
	httpClient  *http.Client
}

// NewOpenAI creates an OpenAI chat completions adapter.
func NewOpenAI(cfg config.ProviderConfig, httpClient *http.Client) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	return &OpenAI{
		name:        "openai/" + cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}
}

func (c *OpenAI) Name() string { return c.name }

// Generate sends one chat completion request. It never retries.
func (c *OpenAI) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if c.apiKey == "" {
		return "", &Error{Provider: c.name, Kind: KindAuth, Err: errors.New("api key not configured")}
	}

	body := openAIRequest{
		Model:       c.model,
		MaxTokens:   firstPositive(prompt.MaxTokens, c.maxTokens),
		Temperature: c.temperature,
	}
	if prompt.Temperature > 0 {
		body.Temperature = prompt.Temperature
	}
	if prompt.System != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: prompt.System})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: prompt.User})

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Provider: c.name, Kind: KindOf(ctxErr(ctx, err)), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Provider: c.name, Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	var decoded openAIResponse
	_ = json.Unmarshal(raw, &decoded)

	if resp.StatusCode != http.StatusOK {
		kind := KindForStatus(resp.StatusCode)
		msg := strings.TrimSpace(string(raw))
		if decoded.Error != nil {
			msg = decoded.Error.Message
			if decoded.Error.Code == "content_filter" || decoded.Error.Code == "content_policy_violation" {
				kind = KindContentRejected
			}
		}
		return "", &Error{Provider: c.name, Kind: kind, Status: resp.StatusCode, Err: errors.New(msg)}
	}

	if len(decoded.Choices) == 0 {
		return "", &Error{Provider: c.name, Kind: KindServer, Status: resp.StatusCode, Err: errors.New("no completion returned")}
	}

	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &Error{Provider: c.name, Kind: KindContentRejected, Err: errors.New("completion filtered")}
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &Error{Provider: c.name, Kind: KindServer, Err: errors.New("empty completion")}
	}
	return text, nil
}

// ctxErr prefers the context's own error so deadline expiry is reported as
// a timeout rather than a transport failure.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
