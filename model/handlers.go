package model

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ToolFunction answers one tool call for userID with a JSON-serializable result
type ToolFunction func(ctx context.Context, userID string, args Args) (interface{}, error)

type toolHandler struct {
	run   ToolFunction
	label string
}

// Handlers binds catalog tool names to the functions that answer them.
// The label is the short progress text shown while the tool runs.
type Handlers struct {
	mu     sync.RWMutex
	byName map[string]toolHandler
}

func NewHandlers() *Handlers {
	return &Handlers{byName: map[string]toolHandler{}}
}

// Bind attaches fn to name. An empty label falls back to the tool name.
func (h *Handlers) Bind(name, label string, fn ToolFunction) error {
	switch {
	case name == "":
		return errors.New("tool name cannot be empty")
	case fn == nil:
		return fmt.Errorf("tool %s: nil function", name)
	}
	if label == "" {
		label = name
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, taken := h.byName[name]; taken {
		return fmt.Errorf("tool %s is already bound", name)
	}
	h.byName[name] = toolHandler{run: fn, label: label}
	return nil
}

// MustBind is Bind for startup wiring
func (h *Handlers) MustBind(name, label string, fn ToolFunction) {
	if err := h.Bind(name, label, fn); err != nil {
		panic(err)
	}
}

func (h *Handlers) lookup(name string) (toolHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	th, ok := h.byName[name]
	return th, ok
}

func (h *Handlers) Has(name string) bool {
	_, ok := h.lookup(name)
	return ok
}

// Label returns the progress text for name, or "" when nothing is bound
func (h *Handlers) Label(name string) string {
	th, _ := h.lookup(name)
	return th.label
}

// Names lists the bound tools in alphabetical order
func (h *Handlers) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.byName))
}

// Call runs the function bound to name. Nil args reach it as an empty map.
func (h *Handlers) Call(ctx context.Context, name, userID string, args Args) (interface{}, error) {
	th, ok := h.lookup(name)
	if !ok {
		return nil, &UnboundToolError{Name: name}
	}
	if args == nil {
		args = Args{}
	}
	return th.run(ctx, userID, args)
}

// Drift compares the bindings with a catalog. Active catalog tools need a
// function; disabled and hidden ones do not. Every binding needs a catalog
// entry. It returns nil when both sides agree.
func (h *Handlers) Drift(catalog *ToolRegistry) *CatalogDriftError {
	drift := &CatalogDriftError{}
	for _, tool := range catalog.GetToolsIncludingHidden() {
		if tool.Status == ToolStatusActive && !h.Has(tool.Name) {
			drift.Unbound = append(drift.Unbound, tool.Name)
		}
	}
	for _, name := range h.Names() {
		if _, ok := catalog.GetTool(name); !ok {
			drift.Orphaned = append(drift.Orphaned, name)
		}
	}
	if len(drift.Unbound) == 0 && len(drift.Orphaned) == 0 {
		return nil
	}
	slices.Sort(drift.Unbound)
	return drift
}

// UnboundToolError is returned by Call for a name with no function
type UnboundToolError struct {
	Name string
}

func (e *UnboundToolError) Error() string {
	return "no function bound for tool: " + e.Name
}

// CatalogDriftError lists the disagreements between catalog and bindings
type CatalogDriftError struct {
	Unbound  []string
	Orphaned []string
}

func (e *CatalogDriftError) Error() string {
	var parts []string
	if len(e.Unbound) > 0 {
		parts = append(parts, "catalog tools without a function: "+strings.Join(e.Unbound, ", "))
	}
	if len(e.Orphaned) > 0 {
		parts = append(parts, "functions without a catalog entry: "+strings.Join(e.Orphaned, ", "))
	}
	return strings.Join(parts, "; ")
}
