package model

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

// MaxMessageLength is the longest user message the chat accepts, in characters
const MaxMessageLength = 1000

// ChatMessage is one entry of the conversation history sent by the client
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the input of one chat turn
type ChatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []ChatMessage `json:"conversationHistory"`
}

// ChatResponse is the output of one chat turn
type ChatResponse struct {
	Message        string                 `json:"message"`
	Navigation     map[string]interface{} `json:"navigation"`
	SessionResults interface{}            `json:"sessionResults,omitempty"`
	JumpResults    interface{}            `json:"jumpResults,omitempty"`
	Stats          interface{}            `json:"stats,omitempty"`
}

// IsUser reports whether the message was authored by the user
func (m ChatMessage) IsUser() bool {
	return strings.EqualFold(m.Role, openai.ChatMessageRoleUser)
}

// ToOpenAI converts the entry to a model message; unknown roles report false
func (m ChatMessage) ToOpenAI() (openai.ChatCompletionMessage, bool) {
	switch strings.ToLower(m.Role) {
	case openai.ChatMessageRoleUser:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}, true
	case openai.ChatMessageRoleAssistant, "model":
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}, true
	default:
		return openai.ChatCompletionMessage{}, false
	}
}
