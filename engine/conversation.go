package engine

import (
	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/vaultcoach/model"
)

// conversation is what one chat turn sends to the model: the system prompt
// with the athlete's stats, the trimmed client history, the new message and
// every tool round after it.
type conversation []openai.ChatCompletionMessage

func newConversation(systemPrompt string, history []model.ChatMessage, historyLimit int, message string) conversation {
	c := make(conversation, 0, historyLimit+8)
	if systemPrompt != "" {
		c = append(c, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	c = append(c, TrimHistory(history, historyLimit)...)
	return append(c, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
}

// addToolRound appends the assistant turn that requested tools, then one
// tool message per call in request order.
func (c *conversation) addToolRound(request openai.ChatCompletionMessage, results []toolResult) {
	*c = append(*c, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   request.Content,
		ToolCalls: request.ToolCalls,
	})
	for i, tc := range request.ToolCalls {
		*c = append(*c, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Name:       tc.Function.Name,
			ToolCallID: tc.ID,
			Content:    results[i].content,
		})
	}
}

// TrimHistory keeps the last limit entries, drops entries with unknown roles
// and then drops leading entries until the first one is user-authored. The
// result is empty when no user entry remains.
func TrimHistory(history []model.ChatMessage, limit int) []openai.ChatCompletionMessage {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	var out []openai.ChatCompletionMessage
	for _, entry := range history {
		msg, ok := entry.ToOpenAI()
		if !ok || (len(out) == 0 && msg.Role != openai.ChatMessageRoleUser) {
			continue
		}
		out = append(out, msg)
	}
	return out
}
