package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/persona-bot/internal/llm"
)

// Client replays canned responses in order. Func, when set, takes precedence.
type Client struct {
	mu        sync.Mutex
	Responses []llm.ChatResponse
	Err       error
	Func      func(llm.ChatRequest) (llm.ChatResponse, error)
	Calls     []llm.ChatRequest
}

func (c *Client) ChatCompletion(ctx context.Context, request llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, request)
	if c.Func != nil {
		return c.Func(request)
	}
	if c.Err != nil {
		return llm.ChatResponse{}, c.Err
	}
	if len(c.Responses) == 0 {
		return llm.ChatResponse{}, nil
	}
	response := c.Responses[0]
	if len(c.Responses) > 1 {
		c.Responses = c.Responses[1:]
	}
	return response, nil
}

func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}
