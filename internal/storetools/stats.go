package storetools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/store"
)

// StatsTool handles the codebase_stats MCP tool.
type StatsTool struct {
	store *store.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(st *store.Store) *StatsTool {
	return &StatsTool{store: st}
}

// Definition returns the MCP tool definition for codebase_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("codebase_stats",
		mcp.WithDescription(
			"Aggregate counts for the stored codebase: modules, elements by "+
				"kind, relationship edges and imports.",
		),
	)
}

// Handle processes the codebase_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to gather stats: %v", err)), nil
	}

	text := fmt.Sprintf(
		"# Codebase Statistics\n\n"+
			"- Modules: %d\n"+
			"- Functions: %d\n"+
			"- Types: %d\n"+
			"- Constants: %d\n"+
			"- Edges: %d\n"+
			"- Imports: %d",
		stats.Modules, stats.Functions, stats.Types, stats.Constants, stats.Edges, stats.Imports)
	return mcp.NewToolResultText(text), nil
}
