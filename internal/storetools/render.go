package storetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/render"
	"github.com/stuart-dev/stuart/internal/store"
)

// RenderTool handles the codebase_render MCP tool.
type RenderTool struct {
	store    *store.Store
	renderer *render.Renderer
}

// NewRenderTool creates a RenderTool.
func NewRenderTool(st *store.Store, r *render.Renderer) *RenderTool {
	return &RenderTool{store: st, renderer: r}
}

// Definition returns the MCP tool definition for codebase_render.
func (t *RenderTool) Definition() mcp.Tool {
	return mcp.NewTool("codebase_render",
		mcp.WithDescription(
			"Serialize the stored codebase to read-only source files in the "+
				"artifact directory. Renders everything by default, or one module.",
		),
		mcp.WithString("module",
			mcp.Description("Render only this module (default: all modules)"),
		),
	)
}

// Handle processes the codebase_render tool call.
func (t *RenderTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var paths []string
	if module := req.GetString("module", ""); module != "" {
		m, err := t.store.GetModuleByName(ctx, module)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
		}
		p, err := t.renderer.RenderModule(ctx, m.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
		}
		paths = []string{p}
	} else {
		var err error
		paths, err = t.renderer.RenderAll(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", err)), nil
		}
	}

	if len(paths) == 0 {
		return mcp.NewToolResultText("Nothing to render: the store has no modules."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rendered %d file(s):\n%s",
		len(paths), strings.Join(paths, "\n"))), nil
}
