// Package pipeline holds the static stage catalog of each project kind and
// the dependency graph built from it.
package pipeline

import (
	"fmt"
	"strings"
)

const (
	ModuleBrand   = "brand"
	ModuleVenture = "venture"
)

// Stage keys.
const (
	BrandContext   = "brand_context"
	Naming         = "naming"
	Manifesto      = "manifesto"
	Voice          = "voice"
	Tagline        = "tagline"
	VisualIdentity = "visual_identity"

	VentureIntake         = "venture_intake"
	VentureIdeaValidation = "venture_idea_validation"
	VentureBuyerPersona   = "venture_buyer_persona"
	VentureBusinessPlan   = "venture_business_plan"
)

type StageDef struct {
	Key        string
	DisplayKey string
	Name       string
	Module     string
	Order      int
	Requires   []string
}

var brandStages = []StageDef{
	{Key: BrandContext, DisplayKey: "B1", Name: "Brand context", Module: ModuleBrand, Order: 1},
	{Key: Naming, DisplayKey: "B2", Name: "Naming", Module: ModuleBrand, Order: 2, Requires: []string{BrandContext}},
	{Key: Manifesto, DisplayKey: "B3", Name: "Manifesto", Module: ModuleBrand, Order: 3, Requires: []string{BrandContext}},
	{Key: Voice, DisplayKey: "B4", Name: "Voice & tone", Module: ModuleBrand, Order: 4, Requires: []string{Manifesto}},
	{Key: Tagline, DisplayKey: "B5", Name: "Tagline", Module: ModuleBrand, Order: 5, Requires: []string{Naming, Voice}},
	{Key: VisualIdentity, DisplayKey: "B6", Name: "Visual identity brief", Module: ModuleBrand, Order: 6, Requires: []string{Naming}},
}

var ventureStages = []StageDef{
	{Key: VentureIntake, DisplayKey: "V1", Name: "Venture intake", Module: ModuleVenture, Order: 1},
	{Key: VentureIdeaValidation, DisplayKey: "V2", Name: "Idea validation", Module: ModuleVenture, Order: 2, Requires: []string{VentureIntake}},
	{Key: VentureBuyerPersona, DisplayKey: "V3", Name: "Buyer persona", Module: ModuleVenture, Order: 3, Requires: []string{VentureIdeaValidation}},
	{Key: VentureBusinessPlan, DisplayKey: "V4", Name: "Business plan", Module: ModuleVenture, Order: 4, Requires: []string{VentureBuyerPersona}},
}

// StagesFor returns the catalog bootstrapped for a project kind.
func StagesFor(kind string) ([]StageDef, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "brand":
		return clone(brandStages), nil
	case "venture":
		return clone(ventureStages), nil
	default:
		return nil, fmt.Errorf("unknown project kind %q", kind)
	}
}

// All returns every known stage definition.
func All() []StageDef {
	out := clone(brandStages)
	return append(out, clone(ventureStages)...)
}

func Lookup(key string) (StageDef, bool) {
	for _, s := range brandStages {
		if s.Key == key {
			return s, true
		}
	}
	for _, s := range ventureStages {
		if s.Key == key {
			return s, true
		}
	}
	return StageDef{}, false
}

func clone(in []StageDef) []StageDef {
	out := make([]StageDef, len(in))
	for i, s := range in {
		s.Requires = append([]string(nil), s.Requires...)
		out[i] = s
	}
	return out
}
