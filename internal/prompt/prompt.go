package prompt

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Template is a named prompt with the variables it requires.
type Template struct {
	Name     string
	Required []string
	tmpl     *template.Template
}

// New parses text as a template requiring the given variables.
func New(name, text string, required ...string) (*Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Template{Name: name, Required: required, tmpl: t}, nil
}

// Load reads an embedded template from templates/<name>.tmpl.
func Load(name string, required ...string) (*Template, error) {
	data, err := templatesFS.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", name, err)
	}
	return New(name, string(data), required...)
}

// MustLoad is Load for package-level prompts that ship with the binary.
func MustLoad(name string, required ...string) *Template {
	t, err := Load(name, required...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render fills the template. Every required variable must be present.
func (t *Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, k := range t.Required {
		if _, ok := vars[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("prompt %s: missing variables: %s", t.Name, strings.Join(missing, ", "))
	}

	var b strings.Builder
	if err := t.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name, err)
	}
	return b.String(), nil
}
