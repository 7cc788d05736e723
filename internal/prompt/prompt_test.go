package prompt

import (
	"strings"
	"testing"
)

func TestRender_MissingVariables(t *testing.T) {
	tmpl, err := New("greet", "Hello {{.name}} from {{.place}}", "name", "place")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = tmpl.Render(map[string]string{"name": "Ada"})
	if err == nil || !strings.Contains(err.Error(), "place") {
		t.Fatalf("expected missing place error, got %v", err)
	}

	out, err := tmpl.Render(map[string]string{"name": "Ada", "place": "the mill"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello Ada from the mill" {
		t.Errorf("got %q", out)
	}
}

func TestRender_UndeclaredVariableStillFails(t *testing.T) {
	tmpl, err := New("t", "{{.declared}} {{.undeclared}}", "declared")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := tmpl.Render(map[string]string{"declared": "x"}); err == nil {
		t.Fatal("expected error for key missing from vars")
	}
}

func TestEmbeddedTemplatesLoad(t *testing.T) {
	for _, name := range []string{"memory_query", "cognitive_update", "action_selection"} {
		if _, err := Load(name); err != nil {
			t.Errorf("load %s: %v", name, err)
		}
	}
	if _, err := Load("nope"); err == nil {
		t.Error("expected error for unknown template")
	}
}
