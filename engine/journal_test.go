package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
)

type flakyToolCallStore struct {
	mu        sync.Mutex
	saved     []*model.ToolCall
	results   map[string]string
	putErr    error
	updateErr error
}

func (f *flakyToolCallStore) PutToolCall(ctx context.Context, tc *model.ToolCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.saved = append(f.saved, tc)
	return nil
}

func (f *flakyToolCallStore) UpdateToolCallResponse(ctx context.Context, id, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.results == nil {
		f.results = map[string]string{}
	}
	f.results[id] = response
	return nil
}

func jumpSearch(id string) openai.ToolCall {
	return openai.ToolCall{
		ID:       id,
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: ToolSearchJumps, Arguments: `{"minHeight":4.5}`},
	}
}

func TestToolJournal_Disabled(t *testing.T) {
	for name, s := range map[string]interface{}{"nil": nil, "unsupported": "not a store"} {
		if j := NewToolJournal(s); j != nil {
			t.Errorf("%s store should give a nil journal", name)
		}
	}

	var j *ToolJournal
	if j.Enabled() {
		t.Error("nil journal should be disabled")
	}
	if id := j.Record(context.Background(), testUser, jumpSearch("call_1")); id != "" {
		t.Errorf("nil journal recorded %q", id)
	}
	j.Complete(context.Background(), "call_1", "{}")
}

func TestToolJournal_RecordAndComplete(t *testing.T) {
	s := &flakyToolCallStore{}
	j := NewToolJournal(s)
	if !j.Enabled() {
		t.Fatal("journal should be enabled")
	}

	id := j.Record(context.Background(), testUser, jumpSearch("call_abc"))
	if id != "call_abc" {
		t.Fatalf("Record = %q, want the model's id", id)
	}
	if got := s.saved[0]; got.UserID != testUser || got.FunctionName != ToolSearchJumps || got.Arguments != `{"minHeight":4.5}` {
		t.Errorf("saved = %+v", got)
	}

	j.Complete(context.Background(), id, `[]`)
	j.Complete(context.Background(), "", `{"ignored":true}`)
	if len(s.results) != 1 || s.results["call_abc"] != `[]` {
		t.Errorf("results = %v", s.results)
	}

	generated := j.Record(context.Background(), testUser, jumpSearch(""))
	if !strings.HasPrefix(generated, "call_") || generated == "call_" || s.saved[1].ToolCallID != generated {
		t.Errorf("generated id = %q, stored %q", generated, s.saved[1].ToolCallID)
	}
}

func TestToolJournal_StoreFailuresAreSwallowed(t *testing.T) {
	s := &flakyToolCallStore{putErr: errors.New("disk full")}
	j := NewToolJournal(s)
	if id := j.Record(context.Background(), testUser, jumpSearch("call_1")); id != "" {
		t.Errorf("failed record returned %q", id)
	}

	s.putErr, s.updateErr = nil, errors.New("disk full")
	j.Complete(context.Background(), j.Record(context.Background(), testUser, jumpSearch("call_2")), "{}")
}

func TestToolJournal_SQLite(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	j := NewToolJournal(db)
	id := j.Record(ctx, testUser, jumpSearch("call_sqlite"))
	j.Complete(ctx, id, `[{"height":"4.60"}]`)

	calls, err := db.ListToolCalls(ctx, testUser)
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	if len(calls) != 1 || calls[0].ToolCallID != "call_sqlite" || calls[0].Response != `[{"height":"4.60"}]` {
		t.Fatalf("calls = %+v", calls)
	}
	if others, _ := db.ListToolCalls(ctx, "someone-else"); len(others) != 0 {
		t.Errorf("tool calls leaked across users: %+v", others)
	}
	if !NewToolJournal(store.NewMemoryStore()).Enabled() {
		t.Error("memory store should keep tool calls")
	}
}

func TestCallNames(t *testing.T) {
	tests := []struct {
		calls []openai.ToolCall
		want  string
	}{
		{nil, ""},
		{[]openai.ToolCall{{}}, "?"},
		{[]openai.ToolCall{jumpSearch("a"), {Function: openai.FunctionCall{Name: ToolGetUserStats}}}, "search_jumps, get_user_stats"},
	}
	for _, tt := range tests {
		if got := callNames(tt.calls); got != tt.want {
			t.Errorf("callNames() = %q, want %q", got, tt.want)
		}
	}
}
