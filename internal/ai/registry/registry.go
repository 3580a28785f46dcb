// Package registry owns provider construction. Each provider type is built at
// most once per Registry; there is no package-level cache.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/anthropic"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/gemini"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/mock"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/openai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type Config struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	GeminiKey        string

	Timeout    time.Duration
	MaxRetries int
}

type Option func(*Registry)

// WithProvider installs a prebuilt provider under its Type().
func WithProvider(p ai.Provider) Option {
	return func(r *Registry) {
		r.providers[p.Type()] = p
	}
}

type Registry struct {
	cfg Config
	log *logger.Logger

	mu        sync.RWMutex
	providers map[string]ai.Provider
	group     singleflight.Group
}

func New(cfg Config, log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:       cfg,
		log:       log.With("component", "ProviderRegistry"),
		providers: map[string]ai.Provider{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Types() []string {
	return []string{mock.Type, openai.Type, anthropic.Type, gemini.Type}
}

func (r *Registry) Get(providerType string) (ai.Provider, error) {
	r.mu.RLock()
	p, ok := r.providers[providerType]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	v, err, _ := r.group.Do(providerType, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.providers[providerType]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}
		built, err := r.build(providerType)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.providers[providerType] = built
		r.mu.Unlock()
		r.log.Debug("provider constructed", "provider", providerType)
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ai.Provider), nil
}

func (r *Registry) build(providerType string) (ai.Provider, error) {
	switch providerType {
	case mock.Type:
		p, err := mock.New()
		if err != nil {
			return nil, err
		}
		return p, nil
	case openai.Type:
		return openai.New(openai.Config{
			APIKey:     r.cfg.OpenAIKey,
			BaseURL:    r.cfg.OpenAIBaseURL,
			Timeout:    r.cfg.Timeout,
			MaxRetries: r.cfg.MaxRetries,
		}, r.log), nil
	case anthropic.Type:
		return anthropic.New(anthropic.Config{
			APIKey:     r.cfg.AnthropicKey,
			BaseURL:    r.cfg.AnthropicBaseURL,
			Timeout:    r.cfg.Timeout,
			MaxRetries: r.cfg.MaxRetries,
		}, r.log), nil
	case gemini.Type:
		return gemini.New(gemini.Config{APIKey: r.cfg.GeminiKey}, r.log), nil
	default:
		return nil, &ai.Error{Code: ai.CodeUnknownProvider, Provider: providerType, Message: fmt.Sprintf("unknown provider %q", providerType)}
	}
}

// Statuses reports CheckStatus for every known type, sorted by type.
func (r *Registry) Statuses() map[string]ai.Status {
	out := map[string]ai.Status{}
	types := r.Types()
	sort.Strings(types)
	for _, t := range types {
		p, err := r.Get(t)
		if err != nil {
			out[t] = ai.Status{Ready: false, Error: err.Error()}
			continue
		}
		out[t] = p.CheckStatus()
	}
	return out
}
