package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

func TestMissingKey(t *testing.T) {
	p := New(Config{}, logger.Nop())
	st := p.CheckStatus()
	assert.False(t, st.Ready)
	assert.Contains(t, st.Error, "ANTHROPIC_API_KEY")
	_, err := p.Complete(context.Background(), ai.Request{})
	assert.ErrorIs(t, err, ai.ErrProviderNotConfigured)
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		var body messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.System, "be brief")
		assert.Contains(t, body.System, "JSON object")
		assert.Equal(t, 300, body.MaxTokens)
		require.NotNil(t, body.Temperature)
		assert.Equal(t, 1.0, *body.Temperature)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)

		_, _ = w.Write([]byte(`{"model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"{\"a\":1}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":40,"output_tokens":10}}`))
	}))
	defer srv.Close()

	temp := 1.6
	p := New(Config{APIKey: "key", BaseURL: srv.URL}, logger.Nop())
	c, err := p.Complete(context.Background(), ai.Request{
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   300,
		Temperature: &temp,
		JSONMode:    true,
		Messages:    []ai.Message{{Role: ai.RoleSystem, Content: "be brief"}, {Role: ai.RoleUser, Content: "go"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, c.Content)
	assert.Equal(t, 50, c.Usage.TotalTokens)
	assert.Equal(t, "end_turn", c.FinishReason)
}

func TestUnauthorizedIsNotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	p := New(Config{APIKey: "bad", BaseURL: srv.URL, MaxRetries: 2}, logger.Nop())
	_, err := p.Complete(context.Background(), ai.Request{Model: "m"})
	assert.ErrorIs(t, err, ai.ErrProviderNotConfigured)
}
