// Package llminterface lets any chat model backend plug into the coaching
// engine. A backend implements Provider; Client adapts it to the
// OpenAI-shaped completion call the chat loop makes.
package llminterface

import "context"

// Message is one turn of the conversation handed to a backend. Assistant
// turns may carry ToolCalls; tool turns answer one of them by ToolCallID.
type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a training-data query requested by the model. Arguments is
// the raw JSON object the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Tool is a catalog entry offered to the model. Parameters holds the
// tool's JSON Schema as sent on the wire.
type Tool struct {
	Name        string
	Description string
	Parameters  interface{}
}

// Response is a single completion. Content is empty when the model asked
// for tools instead of answering. An empty Model means "the one requested".
type Response struct {
	Model     string
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage reports token counts for one completion
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider answers one completion request
type Provider interface {
	ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error)
}

// ProviderFunc lets a plain function serve as a Provider, which keeps
// scripted coaches in tests short.
type ProviderFunc func(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error)

func (f ProviderFunc) ChatCompletion(ctx context.Context, model string, messages []Message, tools []Tool) (*Response, error) {
	return f(ctx, model, messages, tools)
}
