package documents

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/ghiac/vaultcoach/model"
)

func testTools() []model.Tool {
	return []model.Tool{
		{
			Name:        "get_height_progression",
			Description: "History of attempts at a target height",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tolerance":    map[string]interface{}{"type": "number", "description": "Meters either side"},
					"targetHeight": map[string]interface{}{"type": "number", "description": "Target bar height"},
					"timeframe": map[string]interface{}{
						"type": "string",
						"enum": []interface{}{"week", "month", "year", "all"},
					},
				},
				"required": []interface{}{"targetHeight"},
			},
			Status: model.ToolStatusActive,
		},
		{
			Name:        "get_user_stats",
			Description: "Aggregate statistics <all time>",
		},
	}
}

func TestNewCatalogDocument(t *testing.T) {
	doc := NewCatalogDocument(testTools())
	if len(doc.Tools) != 2 {
		t.Fatalf("Expected 2 tools, got %d", len(doc.Tools))
	}

	progression := doc.GetTool("get_height_progression")
	if progression == nil {
		t.Fatal("get_height_progression missing")
	}
	var names []string
	for _, p := range progression.Parameters {
		names = append(names, p.Name)
	}
	if want := []string{"targetHeight", "timeframe", "tolerance"}; !reflect.DeepEqual(names, want) {
		t.Errorf("parameter order = %v, want %v", names, want)
	}
	if !progression.Parameters[0].Required || progression.Parameters[1].Required {
		t.Errorf("required flags = %+v", progression.Parameters)
	}
	if got := progression.Parameters[1].Enum; !reflect.DeepEqual(got, []string{"week", "month", "year", "all"}) {
		t.Errorf("enum = %v", got)
	}
	if got := progression.Signature(); got != "get_height_progression(targetHeight, timeframe?, tolerance?)" {
		t.Errorf("Signature() = %q", got)
	}

	stats := doc.GetTool("get_user_stats")
	if stats.Status != string(model.ToolStatusActive) || len(stats.Parameters) != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if doc.GetTool("missing") != nil {
		t.Error("expected nil for an unknown tool")
	}
}

func TestGetToolsJSON(t *testing.T) {
	doc := NewCatalogDocument(testTools())
	var decoded CatalogDocument
	if err := json.Unmarshal([]byte(doc.GetToolsJSON()), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Tools) != 2 || decoded.Tools[0].Name != "get_height_progression" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestGenerateHTML(t *testing.T) {
	html, err := NewCatalogDocument(testTools()).GenerateHTML()
	if err != nil {
		t.Fatalf("GenerateHTML failed: %v", err)
	}
	page := string(html)

	for _, want := range []string{"<!DOCTYPE html>", "2 tools available", `id="get_height_progression"`, "<code>targetHeight</code>", "<code>year</code>"} {
		if !strings.Contains(page, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(page, "<all time>") || !strings.Contains(page, "&lt;all time&gt;") {
		t.Error("descriptions must be escaped")
	}
}
