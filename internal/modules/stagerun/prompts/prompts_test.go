package prompts

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/mock"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func TestEveryCatalogStageHasPrompt(t *testing.T) {
	r := newRegistry(t)
	for _, def := range pipeline.All() {
		assert.True(t, r.Has(def.Key), def.Key)
	}
}

func TestUnknownStageFallsBackToGeneric(t *testing.T) {
	r := newRegistry(t)
	p := r.Get("mood_board")
	assert.Equal(t, "generic", p.Key)

	res := p.ParseOutput(`{"anything": [1, 2]}`)
	assert.True(t, res.OK, res.Error)

	res = p.ParseOutput(`[1, 2]`)
	assert.False(t, res.OK)
}

func TestMockFixturesValidate(t *testing.T) {
	r := newRegistry(t)
	m, err := mock.New()
	require.NoError(t, err)

	for _, def := range pipeline.All() {
		p := r.Get(def.Key)
		msgs, err := p.BuildMessages(Context{StageKey: def.Key, StageName: def.Name, ItemCount: 5})
		require.NoError(t, err, def.Key)
		c, err := m.Complete(context.Background(), ai.Request{Messages: msgs})
		require.NoError(t, err, def.Key)
		res := p.ParseOutput(c.Content)
		assert.True(t, res.OK, "%s: %s", def.Key, res.Error)
	}
}

func TestNamingProducesFiveItems(t *testing.T) {
	r := newRegistry(t)
	m, err := mock.New()
	require.NoError(t, err)

	p := r.Get(pipeline.Naming)
	msgs, err := p.BuildMessages(Context{StageKey: pipeline.Naming})
	require.NoError(t, err)
	c, err := m.Complete(context.Background(), ai.Request{StageKey: pipeline.Naming, Messages: msgs})
	require.NoError(t, err)
	res := p.ParseOutput(c.Content)
	require.True(t, res.OK, res.Error)

	var out struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.Len(t, out.Items, 5)
}

func TestParseOutput(t *testing.T) {
	p := newRegistry(t).Get(pipeline.Naming)
	valid := `{"items":[{"name":"Acme","rationale":"short"}]}`

	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"plain", valid, true},
		{"json fence", "```json\n" + valid + "\n```", true},
		{"bare fence", "```\n" + valid + "\n```", true},
		{"leading prose", "Here you go:\n" + valid, true},
		{"empty", "   ", false},
		{"not json", "no names today", false},
		{"truncated", `{"items":[{"name":"Acme"`, false},
		{"missing rationale", `{"items":[{"name":"Acme"}]}`, false},
		{"wrong type", `{"items":"Acme"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := p.ParseOutput(tc.raw)
			assert.Equal(t, tc.ok, res.OK, res.Error)
			if tc.ok {
				assert.JSONEq(t, valid, string(res.Data))
			} else {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestVisualIdentityRejectsBadHex(t *testing.T) {
	p := newRegistry(t).Get(pipeline.VisualIdentity)
	res := p.ParseOutput(`{"palette":[{"name":"Red","hex":"red"}],"typography":{"primary":"Inter"},"imagery":"x"}`)
	assert.False(t, res.OK)
}

func TestBuildMessages(t *testing.T) {
	p := newRegistry(t).Get(pipeline.Tagline)
	msgs, err := p.BuildMessages(Context{
		ProjectName:        "Northbean",
		StageKey:           pipeline.Tagline,
		ItemCount:          3,
		CustomInstructions: "Avoid puns.",
		SeedText:           "Know your cup.",
		Upstream: []Upstream{
			{StageKey: pipeline.Naming, Approved: true, Content: `{"items":[]}`},
			{StageKey: pipeline.Voice, Content: `{"traits":[]}`},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "taglines")

	user := msgs[1].Content
	assert.True(t, strings.HasPrefix(user, "Stage: tagline\n"))
	assert.Contains(t, user, "Project: Northbean")
	assert.Contains(t, user, "Propose 3 tagline options")
	assert.Contains(t, user, "[naming, approved]")
	assert.Contains(t, user, "[voice, latest]")
	assert.Contains(t, user, "Know your cup.")
	assert.Contains(t, user, "Avoid puns.")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1}  "))
	assert.Equal(t, "", StripFences(""))
}

func TestCompileRejectsTemplateThatFailsToRender(t *testing.T) {
	tmpl := genericTemplate()
	tmpl.User = "Write about {{.Audience}}."
	_, err := compile(tmpl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user template")

	p, err := compile(genericTemplate())
	require.NoError(t, err)
	p.user = template.Must(template.New("user").Parse("{{index .Upstream 3}}"))
	_, err = p.BuildMessages(Context{})
	assert.Error(t, err, "render errors are returned, not swallowed")
}
