// Package main provides the quest-mcp binary, an MCP server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	qmcp "github.com/ormasoftchile/quest/pkg/ecosystem/mcp"
)

var version = "dev"

func main() {
	s := qmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
