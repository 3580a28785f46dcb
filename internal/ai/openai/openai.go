// Package openai implements ai.Provider over the OpenAI Responses API.
package openai

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

const Type = "openai"

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
		baseURL = "https://api.openai.com"
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
			p.log.Warn("OpenAI request retrying", "attempt", attempt, "sleep", sleep.String(), "error", err.Error())
		},
	}
	return p
}

func (p *Provider) Type() string { return Type }

func (p *Provider) CheckStatus() ai.Status {
	if p.apiKey == "" {
		return ai.Status{Ready: false, Error: "OPENAI_API_KEY is not set"}
	}
	return ai.Status{Ready: true}
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string         `json:"model"`
	Instructions    string         `json:"instructions,omitempty"`
	Input           []inputMessage `json:"input"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
	Text            *textOptions   `json:"text,omitempty"`
}

type textOptions struct {
	Format map[string]any `json:"format,omitempty"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Status string `json:"status"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details,omitempty"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (p *Provider) Complete(ctx context.Context, req ai.Request) (ai.Completion, error) {
	if p.apiKey == "" {
		return ai.Completion{}, ai.NotConfigured(Type, "OPENAI_API_KEY")
	}
	system, rest := ai.SplitSystem(req.Messages)
	body := responsesRequest{
		Model:           req.Model,
		Instructions:    system,
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
	}
	for _, m := range rest {
		body.Input = append(body.Input, inputMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.JSONMode {
		body.Text = &textOptions{Format: map[string]any{"type": "json_object"}}
	}

	var out responsesResponse
	err := httpx.Do(ctx, p.retry, func(ctx context.Context) (*http.Response, error) {
		resp, raw, err := p.doOnce(ctx, "/v1/responses", body)
		if err != nil {
			return resp, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return resp, fmt.Errorf("openai decode error: %w", err)
		}
		return resp, nil
	})
	if err != nil {
		return ai.Completion{}, err
	}

	text := extractOutputText(out)
	if strings.TrimSpace(text) == "" {
		return ai.Completion{}, &ai.Error{Code: ai.CodeEmptyResponse, Provider: Type, Message: "no output_text in response", Retryable: true}
	}
	finish := "stop"
	if out.Status == "incomplete" {
		finish = "length"
		if out.IncompleteDetails != nil && out.IncompleteDetails.Reason != "" {
			finish = out.IncompleteDetails.Reason
		}
	}
	model := out.Model
	if model == "" {
		model = req.Model
	}
	return ai.Completion{
		Content: text,
		Model:   model,
		Usage: ai.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}.FillTotal(),
		FinishReason: finish,
	}, nil
}

func (p *Provider) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
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
