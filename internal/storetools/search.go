package storetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/store"
)

// SearchTool handles the element_search MCP tool.
type SearchTool struct {
	store *store.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(st *store.Store) *SearchTool {
	return &SearchTool{store: st}
}

// Definition returns the MCP tool definition for element_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("element_search",
		mcp.WithDescription(
			"Full-text search across element names, signatures and bodies. "+
				"Use this to find existing code before writing new elements.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms"),
		),
		mcp.WithString("kind",
			mcp.Description("Restrict to one element kind: function, type, constant"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 10)"),
		),
	)
}

// Handle processes the element_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	results, err := t.store.Search(ctx, query, store.SearchOptions{
		Kind:  req.GetString("kind", ""),
		Limit: intArg(req, "limit", 10),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No elements match %q.", query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %d result(s) for %q\n\n", len(results), query)
	for _, r := range results {
		fmt.Fprintf(&b, "- %s.%s (%s)", r.ModuleName, r.Element.Name, r.Element.Kind)
		if r.Element.Signature != "" {
			fmt.Fprintf(&b, " %s", r.Element.Signature)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}
