package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
)

const (
	ExportMarkdown = "markdown"
	ExportHTML     = "html"
)

// RenderMarkdown turns a version's JSON content into a markdown document.
// Object keys are emitted in sorted order so the same content always renders
// the same way.
func RenderMarkdown(stage *types.Stage, v *types.OutputVersion) (string, error) {
	var content any
	dec := json.NewDecoder(bytes.NewReader(v.Content))
	dec.UseNumber()
	if err := dec.Decode(&content); err != nil {
		return "", fmt.Errorf("decode version content: %w", err)
	}

	var b strings.Builder
	title := stage.Name
	if title == "" {
		title = stage.StageKey
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Version %d · %s", v.Version, strings.ToLower(string(v.Type)))
	if v.Provider != "" {
		fmt.Fprintf(&b, " · %s/%s", v.Provider, v.Model)
	}
	if v.Status == types.VersionApproved {
		b.WriteString(" · approved")
	}
	b.WriteString("_\n\n")

	writeValue(&b, content, 2)
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// RenderHTML renders the markdown export to HTML.
func RenderHTML(stage *types.Stage, v *types.OutputVersion) (string, error) {
	md, err := RenderMarkdown(stage, v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

func writeValue(b *strings.Builder, val any, depth int) {
	switch t := val.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := t[k]
			if isScalar(child) {
				fmt.Fprintf(b, "**%s:** %s\n\n", humanize(k), scalar(child))
				continue
			}
			fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", min(depth, 6)), humanize(k))
			writeValue(b, child, depth+1)
		}
	case []any:
		for i, item := range t {
			if isScalar(item) {
				fmt.Fprintf(b, "- %s\n", scalar(item))
				continue
			}
			if m, ok := item.(map[string]any); ok {
				writeListObject(b, m)
				continue
			}
			fmt.Fprintf(b, "- item %d\n", i+1)
		}
		b.WriteString("\n")
	default:
		fmt.Fprintf(b, "%s\n\n", scalar(t))
	}
}

// writeListObject renders one object inside a list as a bullet whose first
// line is its most name-like field.
func writeListObject(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lead := ""
	for _, k := range []string{"name", "title", "tagline", "label"} {
		if v, ok := m[k]; ok && isScalar(v) {
			lead = k
			break
		}
	}
	if lead != "" {
		fmt.Fprintf(b, "- **%s**\n", scalar(m[lead]))
	} else {
		b.WriteString("-\n")
	}
	for _, k := range keys {
		if k == lead {
			continue
		}
		switch v := m[k].(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, scalar(p))
			}
			fmt.Fprintf(b, "  - %s: %s\n", humanize(k), strings.Join(parts, ", "))
		default:
			fmt.Fprintf(b, "  - %s: %s\n", humanize(k), scalar(v))
		}
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case map[string]any, []any:
		raw, _ := json.Marshal(t)
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

// humanize turns snake_case and camelCase keys into a capitalized label.
func humanize(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for _, r := range key {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	if len(words) == 0 {
		return key
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}
