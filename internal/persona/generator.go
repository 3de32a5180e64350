// Package persona turns a source post into an in-character reply.
package persona

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/llm"
)

var ErrEmptyReply = errors.New("language model returned an empty reply")

type Templates struct {
	System  string
	Mention string
	Tracked string
}

type Options struct {
	Name          string
	Model         string
	Temperature   *float64
	MaxTokens     int
	StripMarkdown bool
	Templates     Templates
}

type Request struct {
	Text           string
	AuthorUsername string
	Context        Context
}

type Generator struct {
	client        llm.Client
	name          string
	model         string
	temperature   *float64
	maxTokens     int
	stripMarkdown bool
	system        *template.Template
	mention       *template.Template
	tracked       *template.Template
	logger        *slog.Logger
}

func NewGenerator(client llm.Client, opts Options, logger *slog.Logger) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("persona: llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = withDefaults(opts)

	system, err := parseTemplate("system", opts.Templates.System)
	if err != nil {
		return nil, err
	}
	mention, err := parseTemplate("mention", opts.Templates.Mention)
	if err != nil {
		return nil, err
	}
	tracked, err := parseTemplate("tracked", opts.Templates.Tracked)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:        client,
		name:          opts.Name,
		model:         opts.Model,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
		stripMarkdown: opts.StripMarkdown,
		system:        system,
		mention:       mention,
		tracked:       tracked,
		logger:        logger,
	}, nil
}

func (g *Generator) Name() string { return g.name }

// Generate asks the model for a reply and returns it whitespace-normalized.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	var userTmpl *template.Template
	switch req.Context {
	case ContextMention:
		userTmpl = g.mention
	case ContextTracked:
		userTmpl = g.tracked
	default:
		return "", fmt.Errorf("persona: unsupported reply context %s", req.Context)
	}

	data := PromptData{
		PersonaName: g.name,
		Author:      strings.TrimPrefix(req.AuthorUsername, "@"),
		Text:        req.Text,
		Context:     req.Context.String(),
	}
	systemPrompt, err := render(g.system, data)
	if err != nil {
		return "", err
	}
	userPrompt, err := render(userTmpl, data)
	if err != nil {
		return "", err
	}

	resp, err := g.client.ChatCompletion(ctx, llm.ChatRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []llm.Message{
			llm.SystemMessage(systemPrompt),
			llm.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate %s reply: %w", req.Context, err)
	}

	reply := resp.Content
	if g.stripMarkdown {
		reply = StripMarkdown(reply)
	}
	reply = Normalize(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}

	logger := core.LoggerFromContext(ctx, g.logger)
	if resp.Truncated() {
		logger.Warn("reply hit the token cap", slog.Int("max_tokens", g.maxTokens))
	}
	logger.Debug("generated reply",
		slog.String("context", req.Context.String()),
		slog.Int("length", len(reply)),
		slog.String("finish_reason", resp.FinishReason),
		slog.Int64("total_tokens", resp.TotalTokens),
	)
	return reply, nil
}

func withDefaults(opts Options) Options {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = DefaultName
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == nil {
		opts.Temperature = llm.Float(DefaultTemperature)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if strings.TrimSpace(opts.Templates.System) == "" {
		opts.Templates.System = DefaultSystemTemplate
	}
	if strings.TrimSpace(opts.Templates.Mention) == "" {
		opts.Templates.Mention = DefaultMentionTemplate
	}
	if strings.TrimSpace(opts.Templates.Tracked) == "" {
		opts.Templates.Tracked = DefaultTrackedTemplate
	}
	return opts
}

func parseTemplate(name, body string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("persona: parse %s template: %w", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("persona: render %s template: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
