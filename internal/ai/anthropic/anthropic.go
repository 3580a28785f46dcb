// Package anthropic implements ai.Provider over the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/httpx"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

const (
	Type             = "anthropic"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type Provider struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      httpx.RetryPolicy
}

func New(cfg Config, log *logger.Logger) *Provider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	p := &Provider{
		log:        log.With("provider", Type),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	p.retry = httpx.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		OnRetry: func(attempt int, sleep time.Duration, err error) {
			p.log.Warn("Anthropic request retrying", "attempt", attempt, "sleep", sleep.String(), "error", err.Error())
		},
	}
	return p
}

func (p *Provider) Type() string { return Type }

func (p *Provider) CheckStatus() ai.Status {
	if p.apiKey == "" {
		return ai.Status{Ready: false, Error: "ANTHROPIC_API_KEY is not set"}
	}
	return ai.Status{Ready: true}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *Provider) Complete(ctx context.Context, req ai.Request) (ai.Completion, error) {
	if p.apiKey == "" {
		return ai.Completion{}, ai.NotConfigured(Type, "ANTHROPIC_API_KEY")
	}
	system, rest := ai.SplitSystem(req.Messages)
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object and nothing else.")
	}
	body := messagesRequest{
		Model:       req.Model,
		System:      system,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	// the API caps temperature at 1
	if t := req.Temperature; t != nil && *t > 1 {
		one := 1.0
		body.Temperature = &one
	}
	for _, m := range rest {
		body.Messages = append(body.Messages, message{Role: string(m.Role), Content: m.Content})
	}

	var out messagesResponse
	err := httpx.Do(ctx, p.retry, func(ctx context.Context) (*http.Response, error) {
		resp, raw, err := p.doOnce(ctx, body)
		if err != nil {
			return resp, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return resp, fmt.Errorf("anthropic decode error: %w", err)
		}
		return resp, nil
	})
	if err != nil {
		return ai.Completion{}, err
	}

	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return ai.Completion{}, &ai.Error{Code: ai.CodeEmptyResponse, Provider: Type, Message: "no text content in response", Retryable: true}
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}
	return ai.Completion{
		Content: text.String(),
		Model:   model,
		Usage: ai.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
		}.FillTotal(),
		FinishReason: out.StopReason,
	}, nil
}

func (p *Provider) doOnce(ctx context.Context, body messagesRequest) (*http.Response, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, ai.FromStatus(Type, resp.StatusCode, string(raw))
	}
	return resp, raw, nil
}
