package storetools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/agent"
)

// PackageLookupTool handles the package_lookup MCP tool.
type PackageLookupTool struct {
	registry *agent.Registry
}

// NewPackageLookupTool creates a PackageLookupTool.
func NewPackageLookupTool(reg *agent.Registry) *PackageLookupTool {
	return &PackageLookupTool{registry: reg}
}

// Definition returns the MCP tool definition for package_lookup.
func (t *PackageLookupTool) Definition() mcp.Tool {
	return mcp.NewTool("package_lookup",
		mcp.WithDescription(
			"Look up the latest published version of a dependency on the "+
				"module registry. Use this before writing code that imports a "+
				"third-party package, so imports reference real packages at "+
				"real versions.",
		),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Module path, e.g. github.com/spf13/cobra"),
		),
	)
}

// Handle processes the package_lookup tool call.
func (t *PackageLookupTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modulePath := req.GetString("module", "")
	if modulePath == "" {
		return mcp.NewToolResultError("'module' is required"), nil
	}

	info, err := t.registry.Latest(ctx, modulePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"%s %s (published %s)",
		info.Path, info.Version, info.Time.Format("2006-01-02"),
	)), nil
}
