// Package documents renders the tool catalog as reference documentation.
package documents

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/ghiac/vaultcoach/model"
)

//go:embed catalog.html
var catalogPage string

var catalogTemplate = template.Must(template.New("catalog").Parse(catalogPage))

// CatalogDocument describes every catalog tool and its parameters
type CatalogDocument struct {
	Tools []ToolDocument `json:"tools"`
}

// ToolDocument represents a tool definition
type ToolDocument struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Parameters  []ParamDocument `json:"parameters,omitempty"`
}

// ParamDocument represents one tool parameter
type ParamDocument struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// NewCatalogDocument builds the document from catalog tools, keeping their order
func NewCatalogDocument(tools []model.Tool) *CatalogDocument {
	doc := &CatalogDocument{Tools: make([]ToolDocument, 0, len(tools))}
	for i := range tools {
		t := &tools[i]
		status := string(t.Status)
		if status == "" {
			status = string(model.ToolStatusActive)
		}
		doc.Tools = append(doc.Tools, ToolDocument{
			Name:        t.Name,
			Description: t.Description,
			Status:      status,
			Parameters:  parameters(t),
		})
	}
	return doc
}

func parameters(t *model.Tool) []ParamDocument {
	props, _ := t.InputSchema["properties"].(map[string]interface{})
	required := make(map[string]bool)
	for _, name := range t.RequiredParams() {
		required[name] = true
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	params := make([]ParamDocument, 0, len(names))
	for _, name := range names {
		prop, _ := props[name].(map[string]interface{})
		p := ParamDocument{Name: name, Required: required[name]}
		p.Type, _ = prop["type"].(string)
		p.Description, _ = prop["description"].(string)
		if enum, ok := prop["enum"].([]interface{}); ok {
			for _, v := range enum {
				p.Enum = append(p.Enum, fmt.Sprint(v))
			}
		}
		params = append(params, p)
	}
	return params
}

// GetTool returns a tool by name
func (d *CatalogDocument) GetTool(name string) *ToolDocument {
	for i := range d.Tools {
		if d.Tools[i].Name == name {
			return &d.Tools[i]
		}
	}
	return nil
}

// GetToolsJSON returns the document as JSON
func (d *CatalogDocument) GetToolsJSON() string {
	j, _ := json.Marshal(d)
	return string(j)
}

// GenerateHTML renders the catalog reference page
func (d *CatalogDocument) GenerateHTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := catalogTemplate.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("failed to render catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// Signature renders a tool as name(required, optional?)
func (t ToolDocument) Signature() string {
	args := make([]string, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Required {
			args = append(args, p.Name)
		} else {
			args = append(args, p.Name+"?")
		}
	}
	return t.Name + "(" + strings.Join(args, ", ") + ")"
}
