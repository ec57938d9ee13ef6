package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
)

// ToolCallStore keeps the tool calls made during chat. MemoryStore,
// SQLiteStore and MongoDBStore implement it.
type ToolCallStore interface {
	PutToolCall(ctx context.Context, toolCall *model.ToolCall) error
	UpdateToolCallResponse(ctx context.Context, toolCallID, response string) error
}

// ToolJournal writes each tool call before it runs and its JSON result
// after. Store failures are logged and never reach the chat. A nil journal
// records nothing.
type ToolJournal struct {
	store ToolCallStore
}

// NewToolJournal returns nil when s cannot keep tool calls
func NewToolJournal(s interface{}) *ToolJournal {
	tcs, ok := s.(ToolCallStore)
	if !ok || tcs == nil {
		log.Log.Warnf("[Journal] ⚠️  Store %T cannot keep tool calls; history is disabled", s)
		return nil
	}
	return &ToolJournal{store: tcs}
}

func (j *ToolJournal) Enabled() bool {
	return j != nil
}

// Record stores the call and returns its id, or "" when nothing was stored.
// Calls the model sent without an id get a generated one.
func (j *ToolJournal) Record(ctx context.Context, userID string, call openai.ToolCall) string {
	if j == nil {
		return ""
	}
	id := call.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	now := time.Now()
	err := j.store.PutToolCall(ctx, &model.ToolCall{
		ToolCallID:   id,
		UserID:       userID,
		FunctionName: call.Function.Name,
		Arguments:    call.Function.Arguments,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		log.Log.Warnf("[Journal] ⚠️  Failed to record %s for %s: %v", call.Function.Name, userID, err)
		return ""
	}
	log.Log.Debugf("[Journal] 🔧 Recorded %s | ID: %s | User: %s", call.Function.Name, id, userID)
	return id
}

// Complete attaches the result to a recorded call
func (j *ToolJournal) Complete(ctx context.Context, id, result string) {
	if j == nil || id == "" {
		return
	}
	if err := j.store.UpdateToolCallResponse(ctx, id, result); err != nil {
		log.Log.Warnf("[Journal] ⚠️  Failed to store the result of %s: %v", id, err)
	}
}

// callNames lists the requested tools for logs and progress, e.g.
// "search_jumps, get_user_stats". Unnamed calls show as "?".
func callNames(calls []openai.ToolCall) string {
	names := make([]string, len(calls))
	for i, tc := range calls {
		names[i] = tc.Function.Name
		if names[i] == "" {
			names[i] = "?"
		}
	}
	return strings.Join(names, ", ")
}
