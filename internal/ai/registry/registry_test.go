package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type stubProvider struct{}

func (stubProvider) Type() string           { return "openai" }
func (stubProvider) CheckStatus() ai.Status { return ai.Status{Ready: true} }
func (stubProvider) Complete(context.Context, ai.Request) (ai.Completion, error) {
	return ai.Completion{Content: "{}"}, nil
}

func TestGetConstructsOnce(t *testing.T) {
	r := New(Config{}, logger.Nop())

	var wg sync.WaitGroup
	got := make([]ai.Provider, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Get("anthropic")
			assert.NoError(t, err)
			got[i] = p
		}(i)
	}
	wg.Wait()
	for _, p := range got[1:] {
		assert.Same(t, got[0], p)
	}
}

func TestUnknownProvider(t *testing.T) {
	r := New(Config{}, logger.Nop())
	_, err := r.Get("skynet")
	assert.ErrorIs(t, err, ai.ErrUnknownProvider)
}

func TestWithProviderOverrides(t *testing.T) {
	stub := stubProvider{}
	r := New(Config{}, logger.Nop(), WithProvider(stub))
	p, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, stub, p)
}

func TestStatuses(t *testing.T) {
	r := New(Config{GeminiKey: "g"}, logger.Nop())
	st := r.Statuses()
	assert.True(t, st["mock"].Ready)
	assert.True(t, st["gemini"].Ready)
	assert.False(t, st["openai"].Ready)
	assert.False(t, st["anthropic"].Ready)
}

func TestSeparateRegistriesDoNotShare(t *testing.T) {
	a := New(Config{}, logger.Nop())
	b := New(Config{}, logger.Nop())
	pa, err := a.Get("mock")
	require.NoError(t, err)
	pb, err := b.Get("mock")
	require.NoError(t, err)
	assert.NotSame(t, pa, pb)
}
