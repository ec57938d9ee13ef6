package engine

import (
	"context"
	"time"
)

// UsageKind separates model calls from tool executions
type UsageKind string

const (
	UsageModelCall UsageKind = "model_call"
	UsageToolCall  UsageKind = "tool_call"
)

// UsageEvent describes one metered action. Name is the model id for model
// calls and the tool name for tool calls; token counts are zero for tools.
type UsageEvent struct {
	UserID       string
	Kind         UsageKind
	Name         string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Err          error
}

// UsageObserver is told about every model call and tool execution
type UsageObserver interface {
	ObserveUsage(ctx context.Context, event UsageEvent)
}

// UsageFunc lets a plain function serve as a UsageObserver
type UsageFunc func(ctx context.Context, event UsageEvent)

func (f UsageFunc) ObserveUsage(ctx context.Context, event UsageEvent) {
	f(ctx, event)
}

func (e *Engine) observe(ctx context.Context, event UsageEvent) {
	if e.usage != nil {
		e.usage.ObserveUsage(ctx, event)
	}
}
