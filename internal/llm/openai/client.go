package openai

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/persona-bot/internal/config"
	"github.com/bakkerme/persona-bot/internal/core"
	"github.com/bakkerme/persona-bot/internal/llm"
)

type Client struct {
	client openai.Client
}

func NewClient(cfg config.OpenAIEnvConfig, opts ...option.RequestOption) *Client {
	options := []option.RequestOption{}
	if cfg.APIKey != "" {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.OTel.Enabled {
		options = append(options, option.WithMiddleware(spanMiddleware(cfg.OTel.CaptureBodies, cfg.OTel.MaxBodyBytes)))
	}
	options = append(options, opts...)
	return &Client{client: openai.NewClient(options...)}
}

func (c *Client) ChatCompletion(ctx context.Context, request llm.ChatRequest) (llm.ChatResponse, error) {
	ctx, span := otel.Tracer("persona-bot/llm/openai").Start(ctx, "llm.openai.chat.completions")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", request.Model),
		attribute.Int("llm.max_tokens", request.MaxTokens),
		attribute.Int("llm.input_messages", len(request.Messages)),
		attribute.String("cycle.id", core.CycleIDFromContext(ctx)),
		attribute.String("bot.stream", core.StreamFromContext(ctx)),
	)
	if request.Temperature != nil {
		span.SetAttributes(attribute.Float64("llm.temperature", *request.Temperature))
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages))
	for _, msg := range request.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}
	if request.Temperature != nil {
		params.Temperature = openai.Float(*request.Temperature)
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.ChatResponse{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		err := fmt.Errorf("openai: empty response")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.ChatResponse{}, err
	}

	choice := response.Choices[0]
	span.SetAttributes(
		attribute.String("llm.finish_reason", string(choice.FinishReason)),
		attribute.Int64("llm.usage.total_tokens", response.Usage.TotalTokens),
	)
	span.SetStatus(codes.Ok, "")
	return llm.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TotalTokens:  response.Usage.TotalTokens,
	}, nil
}
