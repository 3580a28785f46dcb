package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
)

// Upstream is the content of a prerequisite stage handed to a prompt.
type Upstream struct {
	StageKey string
	Approved bool
	Content  string
}

// Context is everything a template may reference. Missing fields render empty.
type Context struct {
	ProjectName        string
	ProjectKind        string
	StageKey           string
	StageName          string
	Preset             string
	ItemCount          int
	CustomInstructions string
	SeedText           string
	Upstream           []Upstream
}

type ParseResult struct {
	OK    bool
	Data  json.RawMessage
	Error string
}

type Prompt struct {
	Key        string
	Version    int
	SchemaName string

	system *template.Template
	user   *template.Template
	schema *jsonschema.Schema
}

// BuildMessages renders the system and user messages for one run.
func (p *Prompt) BuildMessages(in Context) ([]ai.Message, error) {
	if in.StageKey == "" {
		in.StageKey = p.Key
	}
	system, err := render(p.system, in)
	if err != nil {
		return nil, fmt.Errorf("render %s system prompt: %w", p.Key, err)
	}
	body, err := render(p.user, in)
	if err != nil {
		return nil, fmt.Errorf("render %s user prompt: %w", p.Key, err)
	}
	var user strings.Builder
	user.WriteString("Stage: " + in.StageKey + "\n")
	if in.ProjectName != "" {
		user.WriteString("Project: " + in.ProjectName + "\n")
	}
	user.WriteString("\n")
	user.WriteString(body)
	if len(in.Upstream) > 0 {
		user.WriteString("\n\nContext from earlier stages:")
		for _, u := range in.Upstream {
			label := "latest"
			if u.Approved {
				label = "approved"
			}
			fmt.Fprintf(&user, "\n[%s, %s]\n%s", u.StageKey, label, strings.TrimSpace(u.Content))
		}
	}
	if in.SeedText != "" {
		user.WriteString("\n\nStarting draft from the user (improve on it, keep what works):\n" + in.SeedText)
	}
	if in.CustomInstructions != "" {
		user.WriteString("\n\nAdditional instructions:\n" + in.CustomInstructions)
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: system},
		{Role: ai.RoleUser, Content: strings.TrimSpace(user.String())},
	}, nil
}

// ParseOutput never panics; any failure is reported in the result.
func (p *Prompt) ParseOutput(raw string) (res ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ParseResult{Error: fmt.Sprintf("parse panic: %v", r)}
		}
	}()
	body := StripFences(raw)
	if body == "" {
		return ParseResult{Error: "empty output"}
	}
	var doc any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return ParseResult{Error: "invalid json: " + err.Error()}
	}
	if p.schema != nil {
		if err := p.schema.Validate(doc); err != nil {
			return ParseResult{Error: "schema: " + err.Error()}
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(body)); err != nil {
		return ParseResult{Error: "invalid json: " + err.Error()}
	}
	return ParseResult{OK: true, Data: json.RawMessage(compact.Bytes())}
}

// StripFences removes a surrounding ``` or ```json block and any prose
// outside the outermost JSON object.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			lang := strings.TrimSpace(s[:i])
			if lang == "" || !strings.ContainsAny(lang, "{[") {
				s = s[i+1:]
			}
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

type Registry struct {
	byKey   map[string]*Prompt
	generic *Prompt
}

// NewRegistry compiles every stage prompt. It fails only on a broken
// template or schema.
func NewRegistry() (*Registry, error) {
	r := &Registry{byKey: map[string]*Prompt{}}
	for _, s := range stageTemplates() {
		p, err := compile(s)
		if err != nil {
			return nil, err
		}
		r.byKey[s.StageKey] = p
	}
	g, err := compile(genericTemplate())
	if err != nil {
		return nil, err
	}
	r.generic = g
	return r, nil
}

// Get returns the stage prompt, or the generic prompt for unknown keys.
func (r *Registry) Get(stageKey string) *Prompt {
	if p, ok := r.byKey[stageKey]; ok {
		return p
	}
	return r.generic
}

func (r *Registry) Has(stageKey string) bool {
	_, ok := r.byKey[stageKey]
	return ok
}
