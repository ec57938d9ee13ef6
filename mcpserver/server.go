// Package mcpserver exposes the training tool catalog over the Model Context
// Protocol, scoped to one athlete.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ghiac/vaultcoach/engine"
	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
)

type contextKey int

const userIDKey contextKey = iota

// WithUserID returns a context that scopes tool calls to userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user set by WithUserID, or def
func UserIDFromContext(ctx context.Context, def string) string {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return def
}

const statsURI = "vaultcoach://user_stats"

// New creates an MCP server with every active catalog tool registered under
// its catalog schema. Calls run as userID unless the context carries another.
func New(executor *engine.Executor, userID, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer("vaultcoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Pole vault training data for one athlete. Query sessions, jumps, statistics, pole and technique analysis, and get training recommendations."),
	)

	h := &handlers{executor: executor, userID: userID}

	active := executor.Tools.GetActiveTools()
	tools := make([]server.ServerTool, 0, len(active))
	for _, t := range active {
		schema, err := t.SchemaJSON()
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
		}
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(t.Name, t.Description, schema),
			Handler: h.call(t.Name),
		})
	}
	s.AddTools(tools...)

	s.AddResource(mcp.NewResource(statsURI, "Athlete Stats",
		mcp.WithResourceDescription("All-time session and jump totals, personal best and success rate per height"),
		mcp.WithMIMEType("application/json"),
	), h.userStats)

	log.Log.Infof("[MCP] ✅ Registered %d tools | User: %s", len(tools), userID)
	return s, nil
}

// handlers holds dependencies for MCP tool/resource handlers
type handlers struct {
	executor *engine.Executor
	userID   string
}

func (h *handlers) call(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := UserIDFromContext(ctx, h.userID)
		result, err := h.executor.Execute(ctx, userID, name, model.Args(req.GetArguments()))
		if err != nil {
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		if m, ok := result.(map[string]interface{}); ok {
			if msg, ok := m["error"].(string); ok {
				return mcp.NewToolResultError(msg), nil
			}
		}
		out, err := mcp.NewToolResultJSON(result)
		if err != nil {
			return mcp.NewToolResultError("serialization failed"), nil
		}
		return out, nil
	}
}

func (h *handlers) userStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	userID := UserIDFromContext(ctx, h.userID)
	stats, err := h.executor.Execute(ctx, userID, "get_user_stats", model.Args{"timeframe": "all"})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: statsURI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

// ServeStdio serves the MCP server on stdin/stdout until the client disconnects
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
