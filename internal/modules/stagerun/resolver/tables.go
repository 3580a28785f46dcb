package resolver

import "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"

type Preset string

const (
	PresetFast     Preset = "fast"
	PresetBalanced Preset = "balanced"
	PresetQuality  Preset = "quality"
)

var Presets = []Preset{PresetFast, PresetBalanced, PresetQuality}

const DefaultPreset = PresetBalanced

const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// PrimaryProvider receives every unrecognized provider request.
const PrimaryProvider = ProviderOpenAI

var Providers = []string{ProviderMock, ProviderOpenAI, ProviderAnthropic, ProviderGemini}

var providerAliases = map[string]string{
	"claude":  ProviderAnthropic,
	"google":  ProviderGemini,
	"offline": ProviderMock,
	"gpt":     ProviderOpenAI,
}

type providerModels struct {
	allowed  []string
	defaults map[Preset]string
}

var models = map[string]providerModels{
	ProviderOpenAI: {
		allowed: []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini", "gpt-4.1", "o3-mini"},
		defaults: map[Preset]string{
			PresetFast:     "gpt-4o-mini",
			PresetBalanced: "gpt-4o",
			PresetQuality:  "gpt-4.1",
		},
	},
	ProviderAnthropic: {
		allowed: []string{"claude-3-5-haiku-latest", "claude-3-7-sonnet-latest", "claude-sonnet-4-20250514", "claude-opus-4-20250514"},
		defaults: map[Preset]string{
			PresetFast:     "claude-3-5-haiku-latest",
			PresetBalanced: "claude-sonnet-4-20250514",
			PresetQuality:  "claude-opus-4-20250514",
		},
	},
	ProviderGemini: {
		allowed: []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"},
		defaults: map[Preset]string{
			PresetFast:     "gemini-2.0-flash",
			PresetBalanced: "gemini-2.5-flash",
			PresetQuality:  "gemini-2.5-pro",
		},
	},
	ProviderMock: {
		allowed: []string{"mock-fast", "mock-balanced", "mock-quality"},
		defaults: map[Preset]string{
			PresetFast:     "mock-fast",
			PresetBalanced: "mock-balanced",
			PresetQuality:  "mock-quality",
		},
	},
}

// Tuning is the per-stage, per-preset sizing of one run.
type Tuning struct {
	EstimatedTokens int
	MaxOutputTokens int
	Temperature     float64
	// ItemCount is how many options list-style stages ask for.
	ItemCount int
}

var genericTuning = map[Preset]Tuning{
	PresetFast:     {EstimatedTokens: 2500, MaxOutputTokens: 1200, Temperature: 0.7, ItemCount: 3},
	PresetBalanced: {EstimatedTokens: 5000, MaxOutputTokens: 2500, Temperature: 0.7, ItemCount: 5},
	PresetQuality:  {EstimatedTokens: 9000, MaxOutputTokens: 4500, Temperature: 0.6, ItemCount: 8},
}

var stageTuning = map[string]map[Preset]Tuning{
	pipeline.Naming: {
		PresetFast:     {EstimatedTokens: 2000, MaxOutputTokens: 1000, Temperature: 0.9, ItemCount: 5},
		PresetBalanced: {EstimatedTokens: 4000, MaxOutputTokens: 2000, Temperature: 0.9, ItemCount: 5},
		PresetQuality:  {EstimatedTokens: 7000, MaxOutputTokens: 3500, Temperature: 0.8, ItemCount: 10},
	},
	pipeline.Manifesto: {
		PresetFast:     {EstimatedTokens: 3000, MaxOutputTokens: 1500, Temperature: 0.8, ItemCount: 3},
		PresetBalanced: {EstimatedTokens: 6000, MaxOutputTokens: 3000, Temperature: 0.8, ItemCount: 5},
		PresetQuality:  {EstimatedTokens: 10000, MaxOutputTokens: 5000, Temperature: 0.7, ItemCount: 7},
	},
	pipeline.VentureBusinessPlan: {
		PresetFast:     {EstimatedTokens: 6000, MaxOutputTokens: 3000, Temperature: 0.5, ItemCount: 5},
		PresetBalanced: {EstimatedTokens: 12000, MaxOutputTokens: 6000, Temperature: 0.5, ItemCount: 8},
		PresetQuality:  {EstimatedTokens: 20000, MaxOutputTokens: 10000, Temperature: 0.4, ItemCount: 12},
	},
}
