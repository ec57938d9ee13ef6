package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Tool names
const (
	ToolSearchSessions          = "search_sessions"
	ToolSearchJumps             = "search_jumps"
	ToolGetSessionDetails       = "get_session_details"
	ToolGetUserStats            = "get_user_stats"
	ToolNavigateTo              = "navigate_to"
	ToolComparePerformance      = "compare_performance"
	ToolGetPoleAnalysis         = "get_pole_analysis"
	ToolGetHeightProgression    = "get_height_progression"
	ToolAnalyzeTechnique        = "analyze_technique"
	ToolTrainingRecommendations = "get_training_recommendations"
)

// LoadCatalog parses the embedded tool catalog
func LoadCatalog() (*model.ToolRegistry, error) {
	return model.LoadToolCatalog(catalogYAML)
}

// Executor runs catalog tools against a user's training log.
// Every tool loads the user's sessions and filters them in memory.
type Executor struct {
	Sessions store.TrainingStore
	Tools    *model.ToolRegistry
	Handlers *model.Handlers

	now func() time.Time
}

// NewExecutor builds an executor over the embedded catalog and checks that
// the catalog and the registered functions name the same tools.
func NewExecutor(sessions store.TrainingStore) (*Executor, error) {
	if sessions == nil {
		return nil, fmt.Errorf("training store is nil")
	}

	tools, err := LoadCatalog()
	if err != nil {
		return nil, err
	}

	x := &Executor{
		Sessions: sessions,
		Tools:    tools,
		Handlers: model.NewHandlers(),
		now:      time.Now,
	}
	x.bindTools()

	if err := x.Validate(); err != nil {
		return nil, err
	}

	log.Log.Infof("[Executor] ✅ %d tools registered", len(x.Handlers.Names()))
	return x, nil
}

func (x *Executor) bindTools() {
	x.Handlers.MustBind(ToolSearchSessions, "Searching sessions", x.searchSessions)
	x.Handlers.MustBind(ToolSearchJumps, "Searching jumps", x.searchJumps)
	x.Handlers.MustBind(ToolGetSessionDetails, "Loading session", x.getSessionDetails)
	x.Handlers.MustBind(ToolGetUserStats, "Calculating stats", x.getUserStats)
	x.Handlers.MustBind(ToolNavigateTo, "Navigating", x.navigateTo)
	x.Handlers.MustBind(ToolComparePerformance, "Comparing performance", x.comparePerformance)
	x.Handlers.MustBind(ToolGetPoleAnalysis, "Analysing poles", x.getPoleAnalysis)
	x.Handlers.MustBind(ToolGetHeightProgression, "Checking height progression", x.getHeightProgression)
	x.Handlers.MustBind(ToolAnalyzeTechnique, "Analysing technique", x.analyzeTechnique)
	x.Handlers.MustBind(ToolTrainingRecommendations, "Building recommendations", x.getTrainingRecommendations)
}

// Validate reports catalog tools without a function and functions without a
// catalog entry.
func (x *Executor) Validate() error {
	if drift := x.Handlers.Drift(x.Tools); drift != nil {
		return drift
	}
	return nil
}

// Execute runs one tool for userID. An unknown or unusable tool name is
// reported inside the result so a malformed model request never fails the
// chat; errors from the store are returned.
func (x *Executor) Execute(ctx context.Context, userID, name string, args model.Args) (interface{}, error) {
	if err := x.Tools.CanUseTool(name); err != nil {
		log.Log.Warnf("[Executor] ⚠️  Rejected tool call | Tool: %s | User: %s | Error: %v", name, userID, err)
		return unknownTool(name, err), nil
	}
	if !x.Handlers.Has(name) {
		return unknownTool(name, nil), nil
	}

	start := time.Now()
	result, err := x.Handlers.Call(ctx, name, userID, args)
	if err != nil {
		log.Log.Errorf("[Executor] ❌ Tool failed | Tool: %s | User: %s | Error: %v", name, userID, err)
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	log.Log.Debugf("[Executor] Tool %s finished in %s", name, time.Since(start))
	return result, nil
}

// DisplayName returns the progress label for a tool
func (x *Executor) DisplayName(name string) string {
	return x.Handlers.Label(name)
}

func unknownTool(name string, err error) map[string]interface{} {
	var disabled *model.ToolDisabledError
	if errors.As(err, &disabled) {
		return map[string]interface{}{"error": disabled.Error()}
	}
	return map[string]interface{}{"error": "Unknown tool: " + name}
}

func (x *Executor) clock() time.Time {
	if x.now == nil {
		return time.Now()
	}
	return x.now()
}

// loadSessions returns the user's sessions newest first
func (x *Executor) loadSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	sessions, err := x.Sessions.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	model.SortSessionsByDateDesc(sessions)
	return sessions, nil
}
