// Package resolver maps a run request to its effective configuration. It is
// pure: same input, same output, no I/O.
package resolver

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

type Input struct {
	StageKey           string   `json:"stage_key"`
	Preset             string   `json:"preset,omitempty"`
	Provider           string   `json:"provider,omitempty"`
	Model              string   `json:"model,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
	SeedText           string   `json:"seed_text,omitempty"`
}

// EffectiveConfig is what a job actually runs with. It is snapshotted onto the
// job row at creation.
type EffectiveConfig struct {
	StageKey           string   `json:"stage_key"`
	Preset             Preset   `json:"preset"`
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
	Temperature        float64  `json:"temperature"`
	EstimatedTokens    int      `json:"estimated_tokens"`
	MaxOutputTokens    int      `json:"max_output_tokens"`
	ItemCount          int      `json:"item_count"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
	SeedText           string   `json:"seed_text,omitempty"`
	RequestedProvider  string   `json:"requested_provider,omitempty"`
	RequestedModel     string   `json:"requested_model,omitempty"`
	ModelFallback      bool     `json:"model_fallback,omitempty"`
	Warnings           []string `json:"warnings,omitempty"`
}

func Resolve(in Input) EffectiveConfig {
	cfg := EffectiveConfig{
		StageKey:           strings.TrimSpace(in.StageKey),
		CustomInstructions: strings.TrimSpace(in.CustomInstructions),
		SeedText:           strings.TrimSpace(in.SeedText),
		RequestedProvider:  strings.TrimSpace(in.Provider),
		RequestedModel:     strings.TrimSpace(in.Model),
	}

	preset, ok := ParsePreset(in.Preset)
	if !ok && strings.TrimSpace(in.Preset) != "" {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown preset %q, using %s", in.Preset, DefaultPreset))
	}
	cfg.Preset = preset

	provider, ok := NormalizeProvider(in.Provider)
	if !ok && strings.TrimSpace(in.Provider) != "" {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown provider %q, using %s", in.Provider, provider))
	}
	cfg.Provider = provider

	cfg.Model = DefaultModel(provider, preset)
	if m := cfg.RequestedModel; m != "" {
		if IsAllowedModel(provider, m) {
			cfg.Model = m
		} else {
			cfg.ModelFallback = true
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("model %q is not available for %s, using %s", m, provider, cfg.Model))
		}
	}

	t := TuningFor(cfg.StageKey, preset)
	cfg.EstimatedTokens = t.EstimatedTokens
	cfg.MaxOutputTokens = t.MaxOutputTokens
	cfg.ItemCount = t.ItemCount
	cfg.Temperature = t.Temperature
	if in.Temperature != nil {
		cfg.Temperature = clampTemperature(*in.Temperature)
	}
	return cfg
}

// ParsePreset returns DefaultPreset and false for empty or unknown input.
func ParsePreset(s string) (Preset, bool) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Presets, p) {
		return p, true
	}
	return DefaultPreset, false
}

// NormalizeProvider lowercases, applies aliases, and falls back to the
// primary provider for anything unknown.
func NormalizeProvider(s string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := providerAliases[p]; ok {
		p = alias
	}
	if _, ok := models[p]; ok {
		return p, true
	}
	return PrimaryProvider, false
}

func DefaultModel(provider string, preset Preset) string {
	pm, ok := models[provider]
	if !ok {
		pm = models[PrimaryProvider]
	}
	if m, ok := pm.defaults[preset]; ok {
		return m
	}
	return pm.defaults[DefaultPreset]
}

func IsAllowedModel(provider, model string) bool {
	pm, ok := models[provider]
	return ok && slices.Contains(pm.allowed, model)
}

// AllowedModels returns a copy of provider's allowlist.
func AllowedModels(provider string) []string {
	return slices.Clone(models[provider].allowed)
}

func TuningFor(stageKey string, preset Preset) Tuning {
	if table, ok := stageTuning[stageKey]; ok {
		if t, ok := table[preset]; ok {
			return t
		}
	}
	if t, ok := genericTuning[preset]; ok {
		return t
	}
	return genericTuning[DefaultPreset]
}

func clampTemperature(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return math.Max(0, math.Min(2, t))
}
