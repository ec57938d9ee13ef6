package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolStatus controls whether a catalog tool is offered to the model
type ToolStatus string

const (
	// ToolStatusActive tools are offered and executable
	ToolStatusActive ToolStatus = "active"
	// ToolStatusDisabled tools stay in the catalog but refuse execution
	ToolStatusDisabled ToolStatus = "disabled"
	// ToolStatusHidden tools are neither offered nor listed
	ToolStatusHidden ToolStatus = "hidden"
)

// Tool is one catalog entry: a name, a description and a JSON-schema
// parameter object describing its arguments.
type Tool struct {
	Name         string                 `yaml:"name" json:"name"`
	Description  string                 `yaml:"description" json:"description"`
	InputSchema  map[string]interface{} `yaml:"parameters" json:"parameters"`
	Status       ToolStatus             `yaml:"status,omitempty" json:"status,omitempty"`
	ErrorMessage string                 `yaml:"error_message,omitempty" json:"-"`
}

// IsUsable checks if the tool can be used (not disabled or hidden)
func (t *Tool) IsUsable() bool {
	return t.Status == ToolStatusActive
}

// CanUse checks if the tool can be used and returns an error if not
func (t *Tool) CanUse() error {
	switch t.Status {
	case ToolStatusActive:
		return nil
	case ToolStatusHidden:
		return &ToolNotFoundError{ToolName: t.Name}
	default:
		return &ToolDisabledError{ToolName: t.Name, ErrorMessage: t.ErrorMessage}
	}
}

// SchemaJSON returns the parameter schema encoded as JSON
func (t *Tool) SchemaJSON() (json.RawMessage, error) {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return json.Marshal(schema)
}

// RequiredParams lists the names in the schema's "required" array
func (t *Tool) RequiredParams() []string {
	list, _ := t.InputSchema["required"].([]interface{})
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ToolRegistry keeps catalog tools in declaration order
type ToolRegistry struct {
	order []string
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// AddTools adds tools to the registry
func (tr *ToolRegistry) AddTools(tools []Tool) error {
	for _, tool := range tools {
		if err := tr.AddTool(tool); err != nil {
			return err
		}
	}
	return nil
}

// AddTool adds a single tool. Duplicate names are rejected.
func (tr *ToolRegistry) AddTool(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if existing, exists := tr.tools[tool.Name]; exists {
		return &ToolConflictError{ToolName: tool.Name, Existing: existing, New: tool}
	}
	if tool.Status == "" {
		tool.Status = ToolStatusActive
	}
	tr.order = append(tr.order, tool.Name)
	tr.tools[tool.Name] = tool
	return nil
}

// GetTools returns all tools in catalog order, excluding hidden tools
func (tr *ToolRegistry) GetTools() []Tool {
	tools := make([]Tool, 0, len(tr.order))
	for _, name := range tr.order {
		tool := tr.tools[name]
		if tool.Status == ToolStatusHidden {
			continue
		}
		tools = append(tools, tool)
	}
	return tools
}

// GetToolsIncludingHidden returns all tools including hidden ones
func (tr *ToolRegistry) GetToolsIncludingHidden() []Tool {
	tools := make([]Tool, 0, len(tr.order))
	for _, name := range tr.order {
		tools = append(tools, tr.tools[name])
	}
	return tools
}

// GetActiveTools returns the tools that should be offered to the model
func (tr *ToolRegistry) GetActiveTools() []Tool {
	tools := make([]Tool, 0, len(tr.order))
	for _, name := range tr.order {
		if tool := tr.tools[name]; tool.IsUsable() {
			tools = append(tools, tool)
		}
	}
	return tools
}

// GetTool returns a tool by name (including hidden tools)
func (tr *ToolRegistry) GetTool(name string) (Tool, bool) {
	tool, ok := tr.tools[name]
	return tool, ok
}

// CanUseTool checks if a tool can be used and returns an error if not
func (tr *ToolRegistry) CanUseTool(name string) error {
	tool, ok := tr.tools[name]
	if !ok {
		return &ToolNotFoundError{ToolName: name}
	}
	return tool.CanUse()
}

// Names returns every tool name in catalog order
func (tr *ToolRegistry) Names() []string {
	out := make([]string, len(tr.order))
	copy(out, tr.order)
	return out
}

// LoadToolCatalog parses a YAML tool catalog into a registry
func LoadToolCatalog(data []byte) (*ToolRegistry, error) {
	var tools []Tool
	if err := yaml.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("failed to parse tool catalog: %w", err)
	}
	registry := NewToolRegistry()
	for _, tool := range tools {
		if tool.InputSchema != nil {
			schema, ok := jsonCompatible(tool.InputSchema).(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("tool %s: parameters must be an object", tool.Name)
			}
			tool.InputSchema = schema
		}
		if err := registry.AddTool(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// jsonCompatible converts yaml-decoded values into shapes encoding/json accepts
func jsonCompatible(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = jsonCompatible(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = jsonCompatible(val)
		}
		return out
	default:
		return v
	}
}

// ToolConflictError is returned when two catalog tools share a name
type ToolConflictError struct {
	ToolName string
	Existing Tool
	New      Tool
}

func (e *ToolConflictError) Error() string {
	return "tool name conflict: " + e.ToolName
}

// ToolNotFoundError is returned when a tool is not found
type ToolNotFoundError struct {
	ToolName string
}

func (e *ToolNotFoundError) Error() string {
	return "tool not found: " + e.ToolName
}

// ToolDisabledError is returned when trying to use a disabled tool
type ToolDisabledError struct {
	ToolName     string
	ErrorMessage string
}

func (e *ToolDisabledError) Error() string {
	msg := "tool is disabled: " + e.ToolName
	if e.ErrorMessage != "" {
		msg += " - " + e.ErrorMessage
	}
	return msg
}

// ToolCall represents a tool call execution record
type ToolCall struct {
	// ToolCallID is the unique identifier for this tool call (from the model)
	ToolCallID string `json:"toolCallId"`

	// UserID identifies the user whose data the tool read
	UserID string `json:"userId"`

	// FunctionName is the name of the tool that was called
	FunctionName string `json:"functionName"`

	// Arguments is the JSON string of arguments passed to the tool
	Arguments string `json:"arguments"`

	// Response is the JSON result of the tool execution
	Response string `json:"response"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
