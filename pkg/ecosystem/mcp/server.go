// Package mcp exposes quest operations as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with quest tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"quest",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("quest/validate",
			mcp.WithDescription("Validate a quest procedure or world YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the procedure or world YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("quest/run",
			mcp.WithDescription("Run a quest procedure against a simulated world or a bridge"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the procedure YAML file")),
			mcp.WithString("world", mcp.Description("Path to a world/v0 file to simulate (defaults to quest.yaml)")),
			mcp.WithString("bridge", mcp.Description("Bridge base URL (defaults to quest.yaml)")),
			mcp.WithNumber("max_iterations", mcp.Description("Iteration bound (default 200)")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("quest/test",
			mcp.WithDescription("Run scenario tests for a quest procedure"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the procedure YAML file")),
			mcp.WithString("scenario", mcp.Description("Run only the named scenario (optional)")),
		),
		HandleTest,
	)

	s.AddTool(
		mcp.NewTool("quest/schema",
			mcp.WithDescription("Export quest JSON Schema (procedure or world)"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'procedure' or 'world'")),
		),
		HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("quest/diagram",
			mcp.WithDescription("Render the milestone flow of a quest procedure"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the procedure YAML file")),
			mcp.WithString("format", mcp.Description("mermaid (default) or ascii")),
		),
		HandleDiagram,
	)

	return s
}
