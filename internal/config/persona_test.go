package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParsePersona(t *testing.T) {
	doc, err := ParsePersona([]byte(`
name: "Agent Doge"
model: gpt-4.1-mini
temperature: 0.7
max_tokens: 60
strip_markdown: true
system_template: "You are {{.PersonaName}}."
mention_template: "@{{.Author}} says {{.Text}}"
`))
	if err != nil {
		t.Fatalf("ParsePersona() error = %v", err)
	}
	if doc.Name != "Agent Doge" || doc.MaxTokens != 60 || !doc.StripMarkdown {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.Temperature == nil || *doc.Temperature != 0.7 {
		t.Fatalf("Temperature = %v", doc.Temperature)
	}
}

func TestParsePersonaRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "name: x\nflavour: spicy\n",
		"bad field":      "system_template: \"{{.Nope}}\"\n",
		"bad syntax":     "mention_template: \"{{.Author\"\n",
		"temperature":    "temperature: 4\n",
		"negative limit": "max_tokens: -1\n",
	}
	for name, body := range cases {
		if _, err := ParsePersona([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParsePersonaEmptyDocument(t *testing.T) {
	doc, err := ParsePersona(nil)
	if err != nil {
		t.Fatalf("ParsePersona(nil) error = %v", err)
	}
	if doc.Name != "" {
		t.Fatalf("expected zero document, got %+v", doc)
	}
}

func TestLoadPersonaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("name: Shibe\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := LoadPersonaFile(path)
	if err != nil {
		t.Fatalf("LoadPersonaFile() error = %v", err)
	}
	if doc.Name != "Shibe" {
		t.Fatalf("Name = %q", doc.Name)
	}
	if _, err := LoadPersonaFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read persona file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestPersonaOptionsPrecedence(t *testing.T) {
	docTemp := 0.5
	doc := &PersonaDocument{
		Name:            "Doc Name",
		Model:           "doc-model",
		Temperature:     &docTemp,
		MaxTokens:       40,
		StripMarkdown:   true,
		TrackedTemplate: "tracked {{.Text}}",
	}

	var env EnvConfig
	env.OpenAI.Model = "env-model"
	opts := PersonaOptions(env, doc)
	if opts.Name != "Doc Name" || opts.Model != "env-model" || opts.MaxTokens != 40 || !opts.StripMarkdown {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.Temperature == nil || *opts.Temperature != 0.5 {
		t.Fatalf("Temperature = %v, want document value", opts.Temperature)
	}
	if opts.Templates.Tracked != "tracked {{.Text}}" {
		t.Fatalf("Templates = %+v", opts.Templates)
	}

	env.Persona.Name = "Env Name"
	if got := PersonaOptions(env, doc).Name; got != "Env Name" {
		t.Fatalf("env name should win, got %q", got)
	}
	if got := PersonaOptions(env, nil).Name; got != "Env Name" {
		t.Fatalf("Name without document = %q", got)
	}
}
