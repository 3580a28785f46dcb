package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Template declares one stage prompt. System and User are
// text/templates rendered against Context.
type Template struct {
	StageKey   string
	Version    int
	SchemaName string
	Schema     func() map[string]any
	System     string
	User       string
}

func compile(s Template) (*Prompt, error) {
	if strings.TrimSpace(s.StageKey) == "" {
		return nil, fmt.Errorf("missing stage key")
	}
	if s.Version <= 0 {
		return nil, fmt.Errorf("invalid version for %s", s.StageKey)
	}
	if s.Schema == nil {
		return nil, fmt.Errorf("missing schema func for %s", s.StageKey)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return nil, fmt.Errorf("%s system template parse: %w", s.StageKey, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return nil, fmt.Errorf("%s user template parse: %w", s.StageKey, err)
	}
	// Exec errors (bad field names, failing funcs) only surface on render.
	sample := Context{StageKey: s.StageKey, StageName: s.StageKey, ItemCount: 1}
	if _, err := render(sysT, sample); err != nil {
		return nil, fmt.Errorf("%s system template: %w", s.StageKey, err)
	}
	if _, err := render(userT, sample); err != nil {
		return nil, fmt.Errorf("%s user template: %w", s.StageKey, err)
	}
	schema, err := compileSchema(s.SchemaName, s.Schema())
	if err != nil {
		return nil, fmt.Errorf("%s schema: %w", s.StageKey, err)
	}
	return &Prompt{
		Key:        s.StageKey,
		Version:    s.Version,
		SchemaName: s.SchemaName,
		system:     sysT,
		user:       userT,
		schema:     schema,
	}, nil
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func render(t *template.Template, in Context) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
