// Package mock is the deterministic offline provider. It needs no credentials
// and never touches the network.
package mock

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
)

const Type = "mock"

//go:embed fixtures.yaml
var fixturesYAML []byte

type fixture struct {
	Stage    string   `yaml:"stage"`
	Keywords []string `yaml:"keywords"`
	Content  string   `yaml:"content"`
}

type fixtureFile struct {
	Fixtures []fixture `yaml:"fixtures"`
	Generic  struct {
		Content string `yaml:"content"`
	} `yaml:"generic"`
}

type Provider struct {
	fixtures []fixture
	generic  string
}

func New() (*Provider, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(fixturesYAML, &f); err != nil {
		return nil, fmt.Errorf("mock fixtures: %w", err)
	}
	p := &Provider{generic: strings.TrimSpace(f.Generic.Content)}
	for _, fx := range f.Fixtures {
		fx.Content = strings.TrimSpace(fx.Content)
		p.fixtures = append(p.fixtures, fx)
	}
	return p, nil
}

func (p *Provider) Type() string { return Type }

func (p *Provider) CheckStatus() ai.Status { return ai.Status{Ready: true} }

func (p *Provider) Complete(ctx context.Context, req ai.Request) (ai.Completion, error) {
	if err := ctx.Err(); err != nil {
		return ai.Completion{}, err
	}
	var prompt strings.Builder
	for _, m := range req.Messages {
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}
	content := p.match(req.StageKey, prompt.String())

	model := req.Model
	if model == "" {
		model = "mock-balanced"
	}
	usage := ai.Usage{
		PromptTokens:     estimateTokens(prompt.String()),
		CompletionTokens: estimateTokens(content),
	}.FillTotal()
	return ai.Completion{
		Content:      content,
		Model:        model,
		Usage:        usage,
		FinishReason: "stop",
	}, nil
}

func (p *Provider) match(stageKey, prompt string) string {
	lower := strings.ToLower(prompt)
	if stageKey != "" {
		for _, fx := range p.fixtures {
			if fx.Stage == stageKey {
				return fx.Content
			}
		}
	}
	for _, fx := range p.fixtures {
		if strings.Contains(lower, "stage: "+fx.Stage+"\n") || strings.HasSuffix(lower, "stage: "+fx.Stage) {
			return fx.Content
		}
	}
	for _, fx := range p.fixtures {
		for _, kw := range fx.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return fx.Content
			}
		}
	}
	return p.generic
}

// estimateTokens approximates four characters per token.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}
