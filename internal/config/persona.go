package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/bakkerme/persona-bot/internal/persona"
)

// PersonaDocument is the optional YAML file describing the bot's voice.
// Templates use text/template syntax and are executed against persona.PromptData.
type PersonaDocument struct {
	Name            string   `yaml:"name"`
	Model           string   `yaml:"model,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MaxTokens       int      `yaml:"max_tokens,omitempty"`
	StripMarkdown   bool     `yaml:"strip_markdown,omitempty"`
	SystemTemplate  string   `yaml:"system_template,omitempty"`
	MentionTemplate string   `yaml:"mention_template,omitempty"`
	TrackedTemplate string   `yaml:"tracked_template,omitempty"`
}

func LoadPersonaFile(path string) (*PersonaDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return ParsePersona(data)
}

// ParsePersona decodes and validates a persona document. Unknown keys are rejected.
func ParsePersona(data []byte) (*PersonaDocument, error) {
	var doc PersonaDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *PersonaDocument) Validate() error {
	if d.Temperature != nil && (*d.Temperature < 0 || *d.Temperature > 2) {
		return fmt.Errorf("persona: temperature must be between 0 and 2")
	}
	if d.MaxTokens < 0 {
		return fmt.Errorf("persona: max_tokens must be >= 0")
	}
	sample := persona.SamplePromptData()
	templates := []struct {
		name string
		body string
	}{
		{"system_template", d.SystemTemplate},
		{"mention_template", d.MentionTemplate},
		{"tracked_template", d.TrackedTemplate},
	}
	for _, tmpl := range templates {
		if strings.TrimSpace(tmpl.body) == "" {
			continue
		}
		if err := typeCheckTextTemplate(tmpl.name, tmpl.body, sample); err != nil {
			return fmt.Errorf("persona: %s type check failed: %w", tmpl.name, err)
		}
	}
	return nil
}

// PersonaOptions merges the environment with an optional persona document.
// Explicit environment values win over the document; persona defaults fill the rest.
func PersonaOptions(env EnvConfig, doc *PersonaDocument) persona.Options {
	opts := persona.Options{
		Name:          env.Persona.Name,
		Model:         env.OpenAI.Model,
		Temperature:   env.OpenAI.Temperature,
		MaxTokens:     env.OpenAI.MaxTokens,
		StripMarkdown: env.Persona.StripMarkdown,
	}
	if doc == nil {
		return opts
	}
	if opts.Name == "" {
		opts.Name = doc.Name
	}
	if opts.Model == "" {
		opts.Model = doc.Model
	}
	if opts.Temperature == nil {
		opts.Temperature = doc.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = doc.MaxTokens
	}
	opts.StripMarkdown = opts.StripMarkdown || doc.StripMarkdown
	opts.Templates = persona.Templates{
		System:  doc.SystemTemplate,
		Mention: doc.MentionTemplate,
		Tracked: doc.TrackedTemplate,
	}
	return opts
}

func typeCheckTextTemplate(name, templateText string, data any) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(templateText)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	return tmpl.Execute(&buf, data)
}
