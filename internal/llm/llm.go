// Package llm is the narrow chat-completion contract the persona generator depends on.
package llm

import "context"

type MessageRole string

const (
	RoleSystem MessageRole = "system"
	RoleUser   MessageRole = "user"
)

type Message struct {
	Role    MessageRole
	Content string
}

func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

type ChatRequest struct {
	Model    string
	Messages []Message
	// Temperature is optional so that an explicit 0 can be sent.
	Temperature *float64
	// MaxTokens caps the completion; zero leaves it to the provider.
	MaxTokens int
}

// ChatResponse carries the first choice only.
type ChatResponse struct {
	Content      string
	FinishReason string
	TotalTokens  int64
}

// Truncated reports whether the model stopped on the token cap.
func (r ChatResponse) Truncated() bool { return r.FinishReason == "length" }

type Client interface {
	ChatCompletion(ctx context.Context, request ChatRequest) (ChatResponse, error)
}

func Float(v float64) *float64 { return &v }
