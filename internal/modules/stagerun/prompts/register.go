package prompts

import "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"

const jsonOnly = "Return a single JSON object matching the requested shape. No prose, no markdown."

func stageTemplates() []Template {
	return []Template{
		// ---------- Brand ----------
		{
			StageKey:   pipeline.BrandContext,
			Version:    1,
			SchemaName: "brand_context",
			Schema:     BrandContextSchema,
			System: `
You are a senior brand strategist capturing the foundation of a new brand.
Be concrete and grounded in what the founder told you; do not invent facts.
` + jsonOnly,
			User: `
Summarise the brand context and positioning.

Output shape:
- summary: 2-4 sentences.
- audience: who buys and why.
- values: 3-5 single-word values.
- differentiators: 2-4 concrete differentiators.`,
		},
		{
			StageKey:   pipeline.Naming,
			Version:    1,
			SchemaName: "naming",
			Schema:     NamingSchema,
			System: `
You are a naming specialist. Names must be pronounceable, distinct from each other
and plausible as trademarks. ` + jsonOnly,
			User: `
Propose {{if .ItemCount}}{{.ItemCount}}{{else}}5{{end}} brand name options.

Output shape:
- items: [{name, rationale}] where rationale is one sentence.`,
		},
		{
			StageKey:   pipeline.Manifesto,
			Version:    1,
			SchemaName: "manifesto",
			Schema:     ManifestoSchema,
			System: `
You write brand manifestos: short, declarative, memorable. ` + jsonOnly,
			User: `
Write the brand manifesto and its core beliefs.

Output shape:
- title: a short headline.
- body: one paragraph.
- principles: 3-6 short imperative lines.`,
		},
		{
			StageKey:   pipeline.Voice,
			Version:    1,
			SchemaName: "voice",
			Schema:     VoiceSchema,
			System: `
You define brand voice and tone guidelines that copywriters can apply directly. ` + jsonOnly,
			User: `
Define the voice and tone.

Output shape:
- traits: [{trait, description}] 3-5 entries.
- do: writing rules to follow.
- dont: writing rules to avoid.`,
		},
		{
			StageKey:   pipeline.Tagline,
			Version:    1,
			SchemaName: "tagline",
			Schema:     TaglineSchema,
			System: `
You write taglines and slogans consistent with an established name and voice. ` + jsonOnly,
			User: `
Propose {{if .ItemCount}}{{.ItemCount}}{{else}}5{{end}} tagline options.

Output shape:
- items: [{tagline, rationale}].`,
		},
		{
			StageKey:   pipeline.VisualIdentity,
			Version:    1,
			SchemaName: "visual_identity",
			Schema:     VisualIdentitySchema,
			System: `
You brief designers on visual identity. Describe direction, not finished artwork. ` + jsonOnly,
			User: `
Write the visual identity brief: palette, typography and imagery.

Output shape:
- palette: [{name, hex}] with hex as #RRGGBB.
- typography: {primary, secondary}.
- imagery: one or two sentences.`,
		},

		// ---------- Venture ----------
		{
			StageKey:   pipeline.VentureIntake,
			Version:    1,
			SchemaName: "venture_intake",
			Schema:     VentureIntakeSchema,
			System: `
You are a startup analyst running a venture intake interview. ` + jsonOnly,
			User: `
Structure the venture intake.

Output shape:
- idea, problem, target_customer: one sentence each.
- stage: one of idea|prototype|launched|scaling.`,
		},
		{
			StageKey:   pipeline.VentureIdeaValidation,
			Version:    1,
			SchemaName: "venture_idea_validation",
			Schema:     VentureIdeaValidationSchema,
			System: `
You validate startup ideas honestly. Score on a 0-10 scale. ` + jsonOnly,
			User: `
Validate the idea from the intake.

Output shape:
- score: number 0-10.
- strengths, risks: short bullet strings.
- verdict: one or two sentences.`,
		},
		{
			StageKey:   pipeline.VentureBuyerPersona,
			Version:    1,
			SchemaName: "venture_buyer_persona",
			Schema:     VentureBuyerPersonaSchema,
			System: `
You build buyer personas from validated venture ideas. ` + jsonOnly,
			User: `
Describe {{if .ItemCount}}{{.ItemCount}}{{else}}2{{end}} buyer personas.

Output shape:
- personas: [{name, role, pains, goals}].`,
		},
		{
			StageKey:   pipeline.VentureBusinessPlan,
			Version:    1,
			SchemaName: "venture_business_plan",
			Schema:     VentureBusinessPlanSchema,
			System: `
You write lean business plans for early-stage ventures. Prefer numbers over adjectives. ` + jsonOnly,
			User: `
Write the business plan.

Output shape:
- executive_summary, market, revenue_model: a short paragraph each.
- milestones: [{title, quarter}].`,
		},
	}
}

func genericTemplate() Template {
	return Template{
		StageKey:   "generic",
		Version:    1,
		SchemaName: "generic",
		Schema:     GenericSchema,
		System: `
You are a brand strategy assistant. ` + jsonOnly,
		User: `
Produce the deliverable for {{if .StageName}}{{.StageName}}{{else}}{{.StageKey}}{{end}} as a JSON object.`,
	}
}
