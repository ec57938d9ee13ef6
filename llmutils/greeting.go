package llmutils

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// LLMClient defines the interface for LLM operations
// This allows for easy mocking and testing
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GreetingConfig holds configuration for greeting generation
type GreetingConfig struct {
	Model     string // LLM model to use (default: gpt-4o-mini)
	MaxTokens int    // Max tokens for response (default: 120)
}

// DefaultGreetingConfig returns default configuration
func DefaultGreetingConfig() GreetingConfig {
	return GreetingConfig{
		Model:     "gpt-4o-mini",
		MaxTokens: 120,
	}
}

// GenerateGreeting asks the model for a short personalised opening line.
// stats is a plain-text block describing the athlete's training so far.
func GenerateGreeting(ctx context.Context, client LLMClient, stats string, config GreetingConfig) (string, error) {
	if client == nil {
		return "", fmt.Errorf("LLM client is nil")
	}

	// Apply defaults
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 120
	}

	systemPrompt := `You are VaultCoach, a friendly pole vault training assistant.
Write a greeting (1-2 sentences) that opens a chat with the athlete.

Requirements:
- Mention one concrete number from the stats when there is one (personal best, sessions logged or success rate)
- End by inviting a question about their sessions, jumps or progress
- Plain text only, no markdown, no emoji
- Maximum 200 characters

Example: "Welcome back! Your personal best is 4.20m after 18 sessions. Want to look at how your last few sessions went?"
`

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Greet the athlete. Their stats:\n\n" + stats},
		},
		MaxTokens: config.MaxTokens,
	})

	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	greeting := strings.TrimSpace(MessageText(resp.Choices[0].Message))
	if greeting == "" {
		return "", fmt.Errorf("empty greeting from LLM")
	}
	return greeting, nil
}

// MessageText concatenates the text parts of a model message
func MessageText(msg openai.ChatCompletionMessage) string {
	if len(msg.MultiContent) == 0 {
		return msg.Content
	}
	var b strings.Builder
	b.WriteString(msg.Content)
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
