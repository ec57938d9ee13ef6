package llminterface

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

var (
	errNoProvider = errors.New("llm provider is nil")
	errNoResponse = errors.New("llm provider returned no response")
)

// Client adapts a Provider to the OpenAI-shaped completion call used by the
// engine, so the chat loop runs unchanged against any backend.
type Client struct {
	Provider Provider
}

// NewClient wraps a Provider
func NewClient(p Provider) *Client {
	return &Client{Provider: p}
}

// CreateChatCompletion hands the conversation and tool catalog to the
// provider and reports its answer as a completion.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c == nil || c.Provider == nil {
		return openai.ChatCompletionResponse{}, errNoProvider
	}

	resp, err := c.Provider.ChatCompletion(ctx, req.Model, messagesFrom(req.Messages), toolsFrom(req.Tools))
	switch {
	case err != nil:
		return openai.ChatCompletionResponse{}, err
	case resp == nil:
		return openai.ChatCompletionResponse{}, errNoResponse
	}
	return completionFrom(resp, req.Model), nil
}
