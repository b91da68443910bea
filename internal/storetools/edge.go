package storetools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/gateway"
)

// EdgeCreateTool handles the edge_create MCP tool.
type EdgeCreateTool struct {
	gateway *gateway.Gateway
}

// NewEdgeCreateTool creates an EdgeCreateTool.
func NewEdgeCreateTool(gw *gateway.Gateway) *EdgeCreateTool {
	return &EdgeCreateTool{gateway: gw}
}

// Definition returns the MCP tool definition for edge_create.
func (t *EdgeCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("edge_create",
		mcp.WithDescription(
			"Record a relationship between two elements: 'calls' from a function "+
				"to a function it invokes, or 'uses_type' from an element to a type. "+
				"Edges drive context assembly, so record them for every dependency.",
		),
		mcp.WithString("from_module",
			mcp.Required(),
			mcp.Description("Module of the depending element"),
		),
		mcp.WithString("from_element",
			mcp.Required(),
			mcp.Description("Name of the depending element"),
		),
		mcp.WithString("to_module",
			mcp.Required(),
			mcp.Description("Module of the dependency"),
		),
		mcp.WithString("to_element",
			mcp.Required(),
			mcp.Description("Name of the dependency"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("One of: calls, uses_type"),
		),
	)
}

// Handle processes the edge_create tool call.
func (t *EdgeCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, errResult := edgeOp(req, gateway.OpCreateEdge)
	if errResult != nil {
		return errResult, nil
	}

	cs := gateway.NewChangeSet(fmt.Sprintf("tool: edge_create %s -> %s", op.From, op.To)).Add(op)
	if _, err := t.gateway.Apply(ctx, cs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create edge: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Edge %s %s %s recorded", op.From, op.EdgeKind, op.To)), nil
}

// ─── EdgeDeleteTool ─────────────────────────────────────────────────────────

// EdgeDeleteTool handles the edge_delete MCP tool.
type EdgeDeleteTool struct {
	gateway *gateway.Gateway
}

// NewEdgeDeleteTool creates an EdgeDeleteTool.
func NewEdgeDeleteTool(gw *gateway.Gateway) *EdgeDeleteTool {
	return &EdgeDeleteTool{gateway: gw}
}

// Definition returns the MCP tool definition for edge_delete.
func (t *EdgeDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("edge_delete",
		mcp.WithDescription(
			"Remove a recorded relationship between two elements. Use when a "+
				"function no longer calls or uses its former dependency.",
		),
		mcp.WithString("from_module",
			mcp.Required(),
			mcp.Description("Module of the depending element"),
		),
		mcp.WithString("from_element",
			mcp.Required(),
			mcp.Description("Name of the depending element"),
		),
		mcp.WithString("to_module",
			mcp.Required(),
			mcp.Description("Module of the dependency"),
		),
		mcp.WithString("to_element",
			mcp.Required(),
			mcp.Description("Name of the dependency"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("One of: calls, uses_type"),
		),
	)
}

// Handle processes the edge_delete tool call.
func (t *EdgeDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	op, errResult := edgeOp(req, gateway.OpDeleteEdge)
	if errResult != nil {
		return errResult, nil
	}

	cs := gateway.NewChangeSet(fmt.Sprintf("tool: edge_delete %s -> %s", op.From, op.To)).Add(op)
	if _, err := t.gateway.Apply(ctx, cs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete edge: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Edge %s %s %s removed", op.From, op.EdgeKind, op.To)), nil
}

// edgeOp builds the shared edge operation from tool arguments.
func edgeOp(req mcp.CallToolRequest, kind gateway.OpKind) (gateway.Op, *mcp.CallToolResult) {
	fromModule := req.GetString("from_module", "")
	fromElement := req.GetString("from_element", "")
	toModule := req.GetString("to_module", "")
	toElement := req.GetString("to_element", "")
	edgeKind := req.GetString("kind", "")
	if fromModule == "" || fromElement == "" || toModule == "" || toElement == "" || edgeKind == "" {
		return gateway.Op{}, mcp.NewToolResultError(
			"'from_module', 'from_element', 'to_module', 'to_element' and 'kind' are required")
	}

	return gateway.Op{
		Kind:     kind,
		From:     &gateway.ElementRef{Module: fromModule, Name: fromElement},
		To:       &gateway.ElementRef{Module: toModule, Name: toElement},
		EdgeKind: edgeKind,
	}, nil
}
