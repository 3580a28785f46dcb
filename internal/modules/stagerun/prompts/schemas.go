package prompts

// ---------- shared fragments ----------

func stringSchema() map[string]any { return map[string]any{"type": "string", "minLength": 1} }

func stringListSchema(min int) map[string]any {
	return map[string]any{"type": "array", "minItems": min, "items": stringSchema()}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func listOf(min int, item map[string]any) map[string]any {
	return map[string]any{"type": "array", "minItems": min, "items": item}
}

// ---------- brand ----------

func BrandContextSchema() map[string]any {
	return objectSchema(map[string]any{
		"summary":         stringSchema(),
		"audience":        stringSchema(),
		"values":          stringListSchema(1),
		"differentiators": stringListSchema(1),
	}, "summary", "audience", "values", "differentiators")
}

func NamingSchema() map[string]any {
	return objectSchema(map[string]any{
		"items": listOf(1, objectSchema(map[string]any{
			"name":      stringSchema(),
			"rationale": stringSchema(),
		}, "name", "rationale")),
	}, "items")
}

func ManifestoSchema() map[string]any {
	return objectSchema(map[string]any{
		"title":      stringSchema(),
		"body":       stringSchema(),
		"principles": stringListSchema(1),
	}, "title", "body", "principles")
}

func VoiceSchema() map[string]any {
	return objectSchema(map[string]any{
		"traits": listOf(1, objectSchema(map[string]any{
			"trait":       stringSchema(),
			"description": stringSchema(),
		}, "trait", "description")),
		"do":   stringListSchema(0),
		"dont": stringListSchema(0),
	}, "traits", "do", "dont")
}

func TaglineSchema() map[string]any {
	return objectSchema(map[string]any{
		"items": listOf(1, objectSchema(map[string]any{
			"tagline":   stringSchema(),
			"rationale": stringSchema(),
		}, "tagline", "rationale")),
	}, "items")
}

func VisualIdentitySchema() map[string]any {
	return objectSchema(map[string]any{
		"palette": listOf(1, objectSchema(map[string]any{
			"name": stringSchema(),
			"hex":  map[string]any{"type": "string", "pattern": "^#[0-9A-Fa-f]{6}$"},
		}, "name", "hex")),
		"typography": objectSchema(map[string]any{
			"primary":   stringSchema(),
			"secondary": stringSchema(),
		}, "primary"),
		"imagery": stringSchema(),
	}, "palette", "typography", "imagery")
}

// ---------- venture ----------

func VentureIntakeSchema() map[string]any {
	return objectSchema(map[string]any{
		"idea":            stringSchema(),
		"problem":         stringSchema(),
		"target_customer": stringSchema(),
		"stage":           map[string]any{"type": "string", "enum": []string{"idea", "prototype", "launched", "scaling"}},
	}, "idea", "problem", "target_customer")
}

func VentureIdeaValidationSchema() map[string]any {
	return objectSchema(map[string]any{
		"score":     map[string]any{"type": "number", "minimum": 0, "maximum": 10},
		"strengths": stringListSchema(1),
		"risks":     stringListSchema(1),
		"verdict":   stringSchema(),
	}, "score", "strengths", "risks", "verdict")
}

func VentureBuyerPersonaSchema() map[string]any {
	return objectSchema(map[string]any{
		"personas": listOf(1, objectSchema(map[string]any{
			"name":  stringSchema(),
			"role":  stringSchema(),
			"pains": stringListSchema(1),
			"goals": stringListSchema(1),
		}, "name", "role", "pains", "goals")),
	}, "personas")
}

func VentureBusinessPlanSchema() map[string]any {
	return objectSchema(map[string]any{
		"executive_summary": stringSchema(),
		"market":            stringSchema(),
		"revenue_model":     stringSchema(),
		"milestones": listOf(1, objectSchema(map[string]any{
			"title":   stringSchema(),
			"quarter": stringSchema(),
		}, "title", "quarter")),
	}, "executive_summary", "market", "revenue_model", "milestones")
}

// GenericSchema accepts any JSON object.
func GenericSchema() map[string]any {
	return map[string]any{"type": "object"}
}
