package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
)

func exportFixture(content string) (*types.Stage, *types.OutputVersion) {
	st := &types.Stage{StageKey: "naming", Name: "Naming"}
	v := &types.OutputVersion{
		Version:  2,
		Content:  []byte(content),
		Provider: "mock",
		Model:    "mock-1",
		Status:   types.VersionApproved,
		Type:     types.VersionTypeAI,
	}
	return st, v
}

func TestRenderMarkdown(t *testing.T) {
	st, v := exportFixture(`{
		"values": ["bold", "warm"],
		"brand_name": "Northbean",
		"items": [{"rationale": "short", "name": "Kobalt"}],
		"launch": {"year": 2027, "ready": false}
	}`)

	md, err := RenderMarkdown(st, v)
	require.NoError(t, err)

	want := "# Naming\n\n" +
		"_Version 2 · generated · mock/mock-1 · approved_\n\n" +
		"**Brand name:** Northbean\n\n" +
		"## Items\n\n" +
		"- **Kobalt**\n" +
		"  - Rationale: short\n\n" +
		"## Launch\n\n" +
		"**Ready:** no\n\n" +
		"**Year:** 2027\n\n" +
		"## Values\n\n" +
		"- bold\n" +
		"- warm\n"
	assert.Equal(t, want, md)

	again, err := RenderMarkdown(st, v)
	require.NoError(t, err)
	assert.Equal(t, md, again)
}

func TestRenderMarkdownFallsBackToStageKey(t *testing.T) {
	st, v := exportFixture(`"plain text"`)
	st.Name = ""
	v.Provider = ""
	v.Status = types.VersionGenerated
	v.Type = types.VersionManual

	md, err := RenderMarkdown(st, v)
	require.NoError(t, err)
	assert.Equal(t, "# naming\n\n_Version 2 · manual_\n\nplain text\n", md)
}

func TestRenderMarkdownRejectsInvalidContent(t *testing.T) {
	st, v := exportFixture(`{"items":`)
	_, err := RenderMarkdown(st, v)
	assert.Error(t, err)
}

func TestRenderHTML(t *testing.T) {
	st, v := exportFixture(`{"brand_name": "Northbean", "values": ["bold"]}`)
	html, err := RenderHTML(st, v)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Naming</h1>")
	assert.Contains(t, html, "<strong>Brand name:</strong> Northbean")
	assert.Contains(t, html, "<li>bold</li>")
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"brand_name":     "Brand name",
		"targetAudience": "Target audience",
		"tone-of-voice":  "Tone of voice",
		"values":         "Values",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, humanize(in), in)
	}
}
