package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

const questDir = "../../../testdata/quests"

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	var text string
	if len(result.Content) > 0 {
		if tc, ok := result.Content[0].(mcp.TextContent); ok {
			text = tc.Text
		}
	}
	return result, text
}

func TestHandleValidate_MissingPath(t *testing.T) {
	result, _ := call(t, HandleValidate, map[string]any{})
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleValidate_ProcedureAndWorld(t *testing.T) {
	result, text := call(t, HandleValidate, map[string]any{"path": filepath.Join(questDir, "dragon.yaml")})
	if result.IsError || !strings.Contains(text, "dragon is valid") {
		t.Errorf("procedure: %v %s", result.IsError, text)
	}
	result, text = call(t, HandleValidate, map[string]any{"path": filepath.Join(questDir, "worlds", "valley.yaml")})
	if result.IsError || !strings.Contains(text, "world valley is valid") {
		t.Errorf("world: %v %s", result.IsError, text)
	}
}

func TestHandleSchema_Procedure(t *testing.T) {
	result, text := call(t, HandleSchema, map[string]any{"type": "procedure"})
	if result.IsError {
		t.Error("expected success for procedure schema")
	}
	if !strings.Contains(text, "quest/v0") {
		t.Error("expected schema content")
	}
}

func TestHandleSchema_UnknownType(t *testing.T) {
	result, _ := call(t, HandleSchema, map[string]any{"type": "foo"})
	if !result.IsError {
		t.Error("expected error for unknown schema type")
	}
}

func TestHandleRun_Sim(t *testing.T) {
	result, text := call(t, HandleRun, map[string]any{
		"path":  filepath.Join(questDir, "dragon.yaml"),
		"world": filepath.Join(questDir, "worlds", "valley.yaml"),
	})
	if result.IsError {
		t.Fatalf("run failed: %s", text)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "completed" {
		t.Errorf("status = %v", resp["status"])
	}
}

func TestHandleTest_AllScenarios(t *testing.T) {
	result, text := call(t, HandleTest, map[string]any{"path": filepath.Join(questDir, "dragon.yaml")})
	if result.IsError {
		t.Fatalf("scenarios failed: %s", text)
	}
	if !strings.Contains(text, `"passed": 5`) {
		t.Errorf("summary: %s", text)
	}
}

func TestHandleDiagram(t *testing.T) {
	result, text := call(t, HandleDiagram, map[string]any{"path": filepath.Join(questDir, "dragon.yaml"), "format": "ascii"})
	if result.IsError || !strings.Contains(text, "dragon") {
		t.Errorf("diagram: %v %s", result.IsError, text)
	}
	result, _ = call(t, HandleDiagram, map[string]any{"path": filepath.Join(questDir, "dragon.yaml"), "format": "png"})
	if !result.IsError {
		t.Error("expected error for unsupported format")
	}
}
