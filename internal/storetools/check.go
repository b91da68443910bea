package storetools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/gateway"
)

// CheckTool handles the consistency_check MCP tool.
type CheckTool struct {
	gateway *gateway.Gateway
}

// NewCheckTool creates a CheckTool.
func NewCheckTool(gw *gateway.Gateway) *CheckTool {
	return &CheckTool{gateway: gw}
}

// Definition returns the MCP tool definition for consistency_check.
func (t *CheckTool) Definition() mcp.Tool {
	return mcp.NewTool("consistency_check",
		mcp.WithDescription(
			"Verify the relationship index against the element store. If they "+
				"diverge, all further mutations are halted until a human "+
				"reconciles the store; report the failure instead of retrying.",
		),
	)
}

// Handle processes the consistency_check tool call.
func (t *CheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.gateway.Check(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("consistency check failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Relationship index is consistent with the store."), nil
}
