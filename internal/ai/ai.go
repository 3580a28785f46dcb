// Package ai is the uniform surface over completion backends.
package ai

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	// JSONMode asks the backend for a JSON object when it supports it.
	JSONMode bool
	// StageKey is informational; the mock provider uses it for fixtures.
	StageKey string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Completion struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

type Status struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

type Provider interface {
	Type() string
	// CheckStatus only inspects credentials. It never calls the network.
	CheckStatus() Status
	Complete(ctx context.Context, req Request) (Completion, error)
}

// SplitSystem separates system messages (joined) from the conversation, for
// backends that take the system prompt as a separate field.
func SplitSystem(msgs []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

// FillTotal sets TotalTokens when a backend only reports the parts.
func (u Usage) FillTotal() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}
