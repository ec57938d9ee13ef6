package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ghiac/vaultcoach/engine"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
)

func newTestExecutor(t *testing.T) *engine.Executor {
	t.Helper()
	s := store.NewMemoryStore()
	session := &model.Session{
		ID:          "s1",
		Date:        time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		SessionType: model.SessionTypeTraining,
		Jumps: []model.Jump{
			{Height: "4.50", Result: model.ResultMake},
			{Height: "4.60", Result: model.ResultNoMake},
		},
	}
	if err := s.PutSession(context.Background(), "athlete-1", session); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	x, err := engine.NewExecutor(s)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return x
}

func callTool(t *testing.T, ctx context.Context, x *engine.Executor, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	s, err := New(x, "athlete-1", "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("tool %s not registered", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := tool.Handler(ctx, req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	return text.Text
}

func TestNew_RegistersActiveCatalog(t *testing.T) {
	x := newTestExecutor(t)
	s, err := New(x, "athlete-1", "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	active := x.Tools.GetActiveTools()
	tools := s.ListTools()
	if len(tools) != len(active) {
		t.Fatalf("registered %d tools, want %d", len(tools), len(active))
	}
	for _, want := range active {
		got, ok := tools[want.Name]
		if !ok {
			t.Errorf("missing tool %s", want.Name)
			continue
		}
		if got.Tool.Description != want.Description {
			t.Errorf("%s description = %q", want.Name, got.Tool.Description)
		}
		if len(got.Tool.RawInputSchema) == 0 {
			t.Errorf("%s has no raw schema", want.Name)
		}
	}
}

func TestToolCall_ReturnsJSON(t *testing.T) {
	x := newTestExecutor(t)
	res := callTool(t, context.Background(), x, "get_user_stats", map[string]any{"timeframe": "all"})
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	var stats engine.UserStats
	if err := json.Unmarshal([]byte(resultText(t, res)), &stats); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if stats.TotalSessions != 1 || stats.TotalJumps != 2 || stats.Makes != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestToolCall_ScopedToContextUser(t *testing.T) {
	x := newTestExecutor(t)
	ctx := WithUserID(context.Background(), "someone-else")
	res := callTool(t, ctx, x, "get_user_stats", map[string]any{})

	var stats engine.UserStats
	if err := json.Unmarshal([]byte(resultText(t, res)), &stats); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if stats.TotalSessions != 0 {
		t.Errorf("other user's data leaked: %+v", stats)
	}
}

func TestToolCall_ValidationErrorIsToolError(t *testing.T) {
	x := newTestExecutor(t)
	res := callTool(t, context.Background(), x, "get_height_progression", map[string]any{})
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	if got := resultText(t, res); got != "targetHeight is required" {
		t.Errorf("text = %q", got)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if got := UserIDFromContext(context.Background(), "default"); got != "default" {
		t.Errorf("UserIDFromContext(empty) = %q", got)
	}
	if got := UserIDFromContext(WithUserID(context.Background(), "a"), "default"); got != "a" {
		t.Errorf("UserIDFromContext = %q", got)
	}
}
