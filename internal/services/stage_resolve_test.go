package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/resolver"
)

func TestResolveKeepsStickyModelForProviderAlias(t *testing.T) {
	const opus = "claude-opus-4-20250514"
	raw, err := json.Marshal(types.StageConfig{Provider: resolver.ProviderAnthropic, Model: opus})
	require.NoError(t, err)
	stage := &types.Stage{StageKey: pipeline.Naming, Config: raw}
	svc := &stageRunService{cfg: StageRunConfig{DefaultProvider: "mock"}}

	cfg := svc.resolve(stage, RunOptions{Provider: "Claude"})
	assert.Equal(t, resolver.ProviderAnthropic, cfg.Provider)
	assert.Equal(t, opus, cfg.Model)

	cfg = svc.resolve(stage, RunOptions{})
	assert.Equal(t, opus, cfg.Model)

	cfg = svc.resolve(stage, RunOptions{Provider: "openai"})
	assert.Equal(t, "openai", cfg.Provider)
	assert.NotEqual(t, opus, cfg.Model, "a sticky model never crosses providers")
}

func TestSameProvider(t *testing.T) {
	assert.True(t, sameProvider("claude", "anthropic"))
	assert.True(t, sameProvider(" OpenAI ", "openai"))
	assert.False(t, sameProvider("openai", "anthropic"))
	assert.False(t, sameProvider("nope", "openai"), "unknown names never match the fallback provider")
}
