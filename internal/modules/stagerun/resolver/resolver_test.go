package resolver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
)

func stageKeys() []string {
	keys := []string{"unknown_stage", ""}
	for _, d := range pipeline.All() {
		keys = append(keys, d.Key)
	}
	return keys
}

func TestResolveCrossProduct(t *testing.T) {
	for _, stage := range stageKeys() {
		for _, preset := range Presets {
			for _, provider := range Providers {
				for _, valid := range []bool{true, false} {
					name := fmt.Sprintf("%s/%s/%s/valid=%v", stage, preset, provider, valid)
					t.Run(name, func(t *testing.T) {
						model := "not-a-real-model-9000"
						if valid {
							allowed := AllowedModels(provider)
							require.NotEmpty(t, allowed)
							model = allowed[len(allowed)-1]
						}
						cfg := Resolve(Input{StageKey: stage, Preset: string(preset), Provider: provider, Model: model})

						assert.Equal(t, preset, cfg.Preset)
						assert.Equal(t, provider, cfg.Provider)
						assert.True(t, IsAllowedModel(cfg.Provider, cfg.Model), "model %q must be in allowlist", cfg.Model)
						if valid {
							assert.Equal(t, model, cfg.Model)
							assert.False(t, cfg.ModelFallback)
							assert.Empty(t, cfg.Warnings)
						} else {
							assert.Equal(t, DefaultModel(provider, preset), cfg.Model)
							assert.True(t, cfg.ModelFallback)
							assert.Len(t, cfg.Warnings, 1)
						}

						tuning := TuningFor(stage, preset)
						assert.Equal(t, tuning.EstimatedTokens, cfg.EstimatedTokens)
						assert.Equal(t, tuning.MaxOutputTokens, cfg.MaxOutputTokens)
						assert.Positive(t, cfg.EstimatedTokens)
						assert.Positive(t, cfg.MaxOutputTokens)

						assert.Equal(t, cfg, Resolve(Input{StageKey: stage, Preset: string(preset), Provider: provider, Model: model}), "deterministic")
					})
				}
			}
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg := Resolve(Input{StageKey: pipeline.Naming})
	assert.Equal(t, PresetBalanced, cfg.Preset)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, 5, cfg.ItemCount)
}

func TestResolveFallbacks(t *testing.T) {
	cfg := Resolve(Input{StageKey: pipeline.Naming, Preset: "turbo", Provider: "skynet", Model: "gpt-9"})
	assert.Equal(t, PresetBalanced, cfg.Preset)
	assert.Equal(t, PrimaryProvider, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model, "balanced default of the primary provider")
	assert.Equal(t, "gpt-9", cfg.RequestedModel)
	assert.Equal(t, "skynet", cfg.RequestedProvider)
	assert.Len(t, cfg.Warnings, 3)

	cfg = Resolve(Input{StageKey: pipeline.Naming, Provider: "anthropic", Model: "gpt-4o"})
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model, "a model from another provider is not valid")
}

func TestResolveAliases(t *testing.T) {
	assert.Equal(t, ProviderAnthropic, Resolve(Input{Provider: "Claude"}).Provider)
	assert.Equal(t, ProviderGemini, Resolve(Input{Provider: "google"}).Provider)
	assert.Equal(t, ProviderMock, Resolve(Input{Provider: " offline "}).Provider)
}

func TestResolveTemperature(t *testing.T) {
	hot, cold, ok := 7.5, -1.0, 1.1
	assert.Equal(t, 2.0, Resolve(Input{Temperature: &hot}).Temperature)
	assert.Equal(t, 0.0, Resolve(Input{Temperature: &cold}).Temperature)
	assert.Equal(t, 1.1, Resolve(Input{Temperature: &ok}).Temperature)
	assert.Equal(t, 0.9, Resolve(Input{StageKey: pipeline.Naming}).Temperature)
}

func TestBespokeTuning(t *testing.T) {
	plan := TuningFor(pipeline.VentureBusinessPlan, PresetQuality)
	generic := TuningFor("whatever", PresetQuality)
	assert.Greater(t, plan.EstimatedTokens, generic.EstimatedTokens)
	assert.Equal(t, genericTuning[PresetFast], TuningFor(pipeline.Voice, PresetFast))
}
