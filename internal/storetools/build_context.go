package storetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/assemble"
	"github.com/stuart-dev/stuart/internal/store"
)

// BuildContextTool handles the context_build MCP tool.
type BuildContextTool struct {
	store     *store.Store
	assembler *assemble.Assembler
}

// NewBuildContextTool creates a BuildContextTool.
func NewBuildContextTool(st *store.Store, asm *assemble.Assembler) *BuildContextTool {
	return &BuildContextTool{store: st, assembler: asm}
}

// Definition returns the MCP tool definition for context_build.
func (t *BuildContextTool) Definition() mcp.Tool {
	return mcp.NewTool("context_build",
		mcp.WithDescription(
			"Assemble the generation context for an element: the element itself "+
				"plus the elements it depends on, direct dependencies first. "+
				"Call this before changing an element so you see everything it touches.",
		),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Module of the target element"),
		),
		mcp.WithString("element",
			mcp.Required(),
			mcp.Description("Name of the target element"),
		),
		mcp.WithNumber("depth",
			mcp.Description("How many dependency levels to include (default: 2, max: 5)"),
		),
		mcp.WithNumber("max_elements",
			mcp.Description("Element budget including the target (default: 20)"),
		),
		mcp.WithString("kinds",
			mcp.Description("Comma-separated edge kinds to follow (default: all)"),
		),
	)
}

// Handle processes the context_build tool call.
func (t *BuildContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module := req.GetString("module", "")
	element := req.GetString("element", "")
	if module == "" || element == "" {
		return mcp.NewToolResultError("'module' and 'element' are required"), nil
	}

	m, err := t.store.GetModuleByName(ctx, module)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build context: %v", err)), nil
	}
	e, err := t.store.GetElementByName(ctx, m.ID, element)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build context: %v", err)), nil
	}

	pol := assemble.Policy{
		MaxDepth:    intArg(req, "depth", 0),
		MaxElements: intArg(req, "max_elements", 0),
	}
	if kinds := req.GetString("kinds", ""); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			pol.Kinds = append(pol.Kinds, strings.TrimSpace(k))
		}
	}

	result, err := t.assembler.Assemble(ctx, e.ID, pol)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build context: %v", err)), nil
	}
	return mcp.NewToolResultText(assemble.Format(result)), nil
}
