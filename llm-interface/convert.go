package llminterface

import (
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

func messagesFrom(in []openai.ChatCompletionMessage) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  callsFrom(m.ToolCalls),
		}
	}
	return out
}

func callsFrom(in []openai.ToolCall) []ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]ToolCall, len(in))
	for i, tc := range in {
		out[i] = ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return out
}

// toolsFrom skips entries without a function definition
func toolsFrom(in []openai.Tool) []Tool {
	var out []Tool
	for _, t := range in {
		if fn := t.Function; fn != nil {
			out = append(out, Tool{Name: fn.Name, Description: fn.Description, Parameters: fn.Parameters})
		}
	}
	return out
}

// completionFrom wraps a backend answer as a single-choice completion. The
// finish reason is tool_calls whenever the model requested any tool.
func completionFrom(r *Response, requestedModel string) openai.ChatCompletionResponse {
	reply := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: r.Content}
	reason := openai.FinishReasonStop
	if len(r.ToolCalls) > 0 {
		reason = openai.FinishReasonToolCalls
		reply.ToolCalls = make([]openai.ToolCall, len(r.ToolCalls))
		for i, tc := range r.ToolCalls {
			reply.ToolCalls[i] = openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			}
		}
	}

	served := r.Model
	if served == "" {
		served = requestedModel
	}
	return openai.ChatCompletionResponse{
		Model:   served,
		Choices: []openai.ChatCompletionChoice{{Message: reply, FinishReason: reason}},
		Usage: openai.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}
}

// EncodeArguments renders tool arguments the way a model would send them.
// Backends that produce structured arguments use it to fill ToolCall.Arguments.
func EncodeArguments(args map[string]interface{}) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeArguments parses ToolCall.Arguments. Blank input decodes to an
// empty map since some models omit arguments for parameterless tools.
func DecodeArguments(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
