// Package gemini implements ai.Provider with the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

const Type = "gemini"

type Config struct {
	APIKey string
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type Provider struct {
	log    *logger.Logger
	apiKey string

	mu       sync.Mutex
	generate generateFunc
	build    func(ctx context.Context) (generateFunc, error)
}

func New(cfg Config, log *logger.Logger) *Provider {
	return &Provider{
		log:    log.With("provider", Type),
		apiKey: strings.TrimSpace(cfg.APIKey),
	}
}

func (p *Provider) Type() string { return Type }

func (p *Provider) CheckStatus() ai.Status {
	if p.apiKey == "" {
		return ai.Status{Ready: false, Error: "GEMINI_API_KEY is not set"}
	}
	return ai.Status{Ready: true}
}

// client is built on first use so that constructing the provider never
// touches the network or the environment. A failed build is retried on the
// next call.
func (p *Provider) client(ctx context.Context) (generateFunc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generate != nil {
		return p.generate, nil
	}
	c, err := p.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	p.generate = c
	return p.generate, nil
}

func (p *Provider) newClient(ctx context.Context) (generateFunc, error) {
	if p.build != nil {
		return p.build(ctx)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return c.Models.GenerateContent, nil
}

func (p *Provider) Complete(ctx context.Context, req ai.Request) (ai.Completion, error) {
	if p.apiKey == "" {
		return ai.Completion{}, ai.NotConfigured(Type, "GEMINI_API_KEY")
	}
	generate, err := p.client(ctx)
	if err != nil {
		return ai.Completion{}, &ai.Error{Code: ai.CodeUpstream, Provider: Type, Message: err.Error(), Retryable: true, Err: err}
	}

	system, rest := ai.SplitSystem(req.Messages)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := generate(ctx, req.Model, contents, cfg)
	if err != nil {
		return ai.Completion{}, classify(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return ai.Completion{}, &ai.Error{Code: ai.CodeEmptyResponse, Provider: Type, Message: "no text in response", Retryable: true}
	}

	out := ai.Completion{Content: text, Model: req.Model, FinishReason: "stop"}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		// Thinking tokens are billed as output but reported apart from candidates.
		out.Usage = ai.Usage{
			PromptTokens:     int(u.PromptTokenCount + u.ToolUsePromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount + u.ThoughtsTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}.FillTotal()
	}
	return out, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := ai.FromStatus(Type, apiErr.Code, apiErr.Message)
		e.Err = err
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ai.Error{Code: ai.CodeUpstream, Provider: Type, Message: err.Error(), Retryable: true, Err: err}
}
