package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/quest/pkg/diagram"
	"github.com/ormasoftchile/quest/pkg/kernel/schema"
	ktesting "github.com/ormasoftchile/quest/pkg/kernel/testing"
	"github.com/ormasoftchile/quest/pkg/kernel/validate"
	"github.com/ormasoftchile/quest/pkg/session"
)

const defaultMaxIterations = 200

// HandleValidate implements the quest/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	if isWorldFile(path) {
		w, errs := validate.ValidateWorldFile(path)
		if validate.HasErrors(errs) {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(fmt.Sprintf("✓ world %s is valid (%d zones, %d interactions)",
			w.Name, len(w.Zones), len(w.Interactions))), nil
	}

	doc, errs := validate.ValidateFile(path)
	if validate.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d milestones)", doc.Meta.Name, len(doc.Milestones))), nil
}

// HandleSchema implements the quest/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)

	var data []byte
	var err error
	switch schemaType {
	case "procedure", "quest":
		data, err = schema.GenerateProcedureJSONSchema()
	case "world":
		data, err = schema.GenerateWorldJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q, use 'procedure' or 'world'", schemaType)), nil
	}
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleRun implements the quest/run MCP tool.
func HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	maxIter := defaultMaxIterations
	if n, ok := args["max_iterations"].(float64); ok && n > 0 {
		maxIter = int(n)
	}
	worldPath, _ := args["world"].(string)
	bridge, _ := args["bridge"].(string)

	var out bytes.Buffer
	s, err := session.Open(path, session.Options{
		Sim:           worldPath,
		Bridge:        bridge,
		Stdout:        &out,
		MaxIterations: maxIter,
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	defer s.Close()

	report, err := s.Run(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	response := map[string]any{
		"run_id":     s.RunID,
		"status":     report.Status,
		"progress":   report.Progress,
		"iterations": report.Iterations,
		"duration":   report.Duration.Round(time.Millisecond).String(),
	}
	if report.LastFailure != "" {
		response["failure"] = report.LastFailure
	}
	if p := s.Last(); p != nil {
		response["milestones"] = p.Raised()
	}
	if s.TracePath != "" {
		response["trace"] = s.TracePath
	}
	if out.Len() > 0 {
		response["output"] = out.String()
	}

	data, _ := json.MarshalIndent(response, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: report.Status == "failed",
	}, nil
}

// HandleTest implements the quest/test MCP tool.
func HandleTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	scenarioName, _ := args["scenario"].(string)

	runner := &ktesting.Runner{Timeout: 30 * time.Second}

	var output *ktesting.TestOutput
	if scenarioName != "" {
		result, err := runner.RunScenario(path, scenarioName)
		if err != nil {
			return errorResult(fmt.Sprintf("run scenario: %s", err)), nil
		}
		output = &ktesting.TestOutput{
			Procedure: result.ProcedureName,
			Scenarios: []ktesting.TestResult{*result},
			Summary:   ktesting.TestSummary{Total: 1},
		}
		switch result.Status {
		case "passed":
			output.Summary.Passed = 1
		case "failed":
			output.Summary.Failed = 1
		default:
			output.Summary.Errors = 1
		}
	} else {
		var err error
		if output, err = runner.RunAll(path); err != nil {
			return errorResult(fmt.Sprintf("run tests: %s", err)), nil
		}
	}

	data, _ := json.MarshalIndent(output, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: output.Summary.Failed > 0 || output.Summary.Errors > 0,
	}, nil
}

// HandleDiagram implements the quest/diagram MCP tool.
func HandleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	format, _ := args["format"].(string)
	if format == "" {
		format = string(diagram.FormatMermaid)
	}

	doc, err := schema.LoadFile(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out, err := diagram.Generate(doc, diagram.Format(format))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(out), nil
}

// isWorldFile checks the document's apiVersion, falling back to the name.
func isWorldFile(path string) bool {
	data, err := os.ReadFile(path)
	if err == nil {
		var head struct {
			APIVersion string `yaml:"apiVersion"`
		}
		if yaml.Unmarshal(data, &head) == nil && head.APIVersion != "" {
			return head.APIVersion == schema.APIVersionWorld
		}
	}
	return strings.Contains(filepath.Base(path), "world")
}

func formatErrors(errs []*validate.ValidationError) string {
	var msgs []string
	for _, e := range validate.Errors(errs) {
		msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}
