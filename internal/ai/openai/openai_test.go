package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

func TestCompleteWithoutKeyFailsFast(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL}, logger.Nop())
	assert.False(t, p.CheckStatus().Ready)
	_, err := p.Complete(context.Background(), ai.Request{Model: "gpt-4o"})
	assert.ErrorIs(t, err, ai.ErrProviderNotConfigured)
	assert.Zero(t, atomic.LoadInt32(&hits), "no network call without credentials")
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body responsesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys", body.Instructions)
		assert.Equal(t, "gpt-4o", body.Model)
		require.Len(t, body.Input, 1)
		assert.Equal(t, "json_object", body.Text.Format["type"])

		_, _ = w.Write([]byte(`{"model":"gpt-4o-2024","status":"completed",
			"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"ok\":true}"}]}],
			"usage":{"input_tokens":12,"output_tokens":5,"total_tokens":17}}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "sk-test", BaseURL: srv.URL}, logger.Nop())
	c, err := p.Complete(context.Background(), ai.Request{
		Model:    "gpt-4o",
		JSONMode: true,
		Messages: []ai.Message{{Role: ai.RoleSystem, Content: "sys"}, {Role: ai.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, c.Content)
	assert.Equal(t, "gpt-4o-2024", c.Model)
	assert.Equal(t, ai.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}, c.Usage)
	assert.Equal(t, "stop", c.FinishReason)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{}"}]}]}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 2}, logger.Nop())
	p.retry.BaseBackoff = time.Millisecond
	p.retry.MaxBackoff = time.Millisecond
	_, err := p.Complete(context.Background(), ai.Request{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestCompleteBadRequestNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	p := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 3}, logger.Nop())
	_, err := p.Complete(context.Background(), ai.Request{Model: "gpt-4o"})
	var aerr *ai.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, ai.CodeBadRequest, aerr.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
