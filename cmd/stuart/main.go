// Stuart: a codebase-as-a-database.
//
// Code lives in a relational store as modules, elements, and typed
// relationships; source files are a derived, read-only rendering. Changes
// flow through a validating mutation gateway, whether from the CLI, the
// MCP server, or the LLM agent.
//
// Usage:
//
//	stuart serve               # Start the MCP server (stdio transport)
//	stuart ask "<request>"     # Apply a natural-language change via the agent
//	stuart render [--module m] # Render the store to source files
//	stuart editable m.f        # Check one element out for hand editing
//	stuart check               # Verify index/store consistency
package main

import (
	"os"

	"github.com/stuart-dev/stuart/internal/cli"
	"github.com/stuart-dev/stuart/internal/server"
)

func main() {
	if err := cli.NewRootCommand(server.Version).Execute(); err != nil {
		os.Exit(1)
	}
}
