package storetools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/render"
	"github.com/stuart-dev/stuart/internal/store"
)

// ElementCreateTool handles the element_create MCP tool.
type ElementCreateTool struct {
	gateway *gateway.Gateway
}

// NewElementCreateTool creates an ElementCreateTool.
func NewElementCreateTool(gw *gateway.Gateway) *ElementCreateTool {
	return &ElementCreateTool{gateway: gw}
}

// Definition returns the MCP tool definition for element_create.
func (t *ElementCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("element_create",
		mcp.WithDescription(
			"Create a code element (function, type, or constant) in a module. "+
				"Functions should be stateless and atomic; record their calls with edge_create.",
		),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Owning module name"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Element name, unique within the module"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("One of: function, type, constant"),
		),
		mcp.WithString("signature",
			mcp.Description("Typed signature line (functions)"),
		),
		mcp.WithString("body",
			mcp.Description("Implementation text (functions and types)"),
		),
		mcp.WithString("value",
			mcp.Description("Literal value (constants)"),
		),
	)
}

// Handle processes the element_create tool call.
func (t *ElementCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module := req.GetString("module", "")
	name := req.GetString("name", "")
	kind := req.GetString("kind", "")
	if module == "" || name == "" || kind == "" {
		return mcp.NewToolResultError("'module', 'name' and 'kind' are required"), nil
	}

	op := gateway.Op{
		Kind:        gateway.OpCreateElement,
		Module:      module,
		Element:     name,
		ElementKind: kind,
	}
	op.Signature = optString(req, "signature")
	op.Body = optString(req, "body")
	op.Value = optString(req, "value")

	cs := gateway.NewChangeSet(fmt.Sprintf("tool: element_create %s.%s", module, name)).Add(op)
	result, err := t.gateway.Apply(ctx, cs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create element: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Element %s.%s (%s) created (change set %s)",
		module, name, kind, result.ChangeSetID)), nil
}

// ─── ElementUpdateTool ──────────────────────────────────────────────────────

// ElementUpdateTool handles the element_update MCP tool.
type ElementUpdateTool struct {
	gateway *gateway.Gateway
}

// NewElementUpdateTool creates an ElementUpdateTool.
func NewElementUpdateTool(gw *gateway.Gateway) *ElementUpdateTool {
	return &ElementUpdateTool{gateway: gw}
}

// Definition returns the MCP tool definition for element_update.
func (t *ElementUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("element_update",
		mcp.WithDescription(
			"Update a code element's content. Only the fields you pass change; "+
				"the element keeps its position in the module.",
		),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Owning module name"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Element name"),
		),
		mcp.WithString("signature",
			mcp.Description("New signature line"),
		),
		mcp.WithString("body",
			mcp.Description("New implementation text"),
		),
		mcp.WithString("value",
			mcp.Description("New literal value (constants)"),
		),
	)
}

// Handle processes the element_update tool call.
func (t *ElementUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module := req.GetString("module", "")
	name := req.GetString("name", "")
	if module == "" || name == "" {
		return mcp.NewToolResultError("'module' and 'name' are required"), nil
	}

	op := gateway.Op{Kind: gateway.OpUpdateElement, Module: module, Element: name}
	op.Signature = optString(req, "signature")
	op.Body = optString(req, "body")
	op.Value = optString(req, "value")
	if op.Signature == nil && op.Body == nil && op.Value == nil {
		return mcp.NewToolResultError("nothing to update: pass 'signature', 'body' or 'value'"), nil
	}

	cs := gateway.NewChangeSet(fmt.Sprintf("tool: element_update %s.%s", module, name)).Add(op)
	if _, err := t.gateway.Apply(ctx, cs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update element: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Element %s.%s updated", module, name)), nil
}

// ─── ElementDeleteTool ──────────────────────────────────────────────────────

// ElementDeleteTool handles the element_delete MCP tool.
type ElementDeleteTool struct {
	gateway *gateway.Gateway
}

// NewElementDeleteTool creates an ElementDeleteTool.
func NewElementDeleteTool(gw *gateway.Gateway) *ElementDeleteTool {
	return &ElementDeleteTool{gateway: gw}
}

// Definition returns the MCP tool definition for element_delete.
func (t *ElementDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("element_delete",
		mcp.WithDescription(
			"Delete a code element. Fails while other elements still reference "+
				"it, unless cascade is set to remove the referencing edges too.",
		),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Owning module name"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Element name"),
		),
		mcp.WithBoolean("cascade",
			mcp.Description("Also remove edges pointing at this element (default: false)"),
		),
	)
}

// Handle processes the element_delete tool call.
func (t *ElementDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module := req.GetString("module", "")
	name := req.GetString("name", "")
	if module == "" || name == "" {
		return mcp.NewToolResultError("'module' and 'name' are required"), nil
	}

	cs := gateway.NewChangeSet(fmt.Sprintf("tool: element_delete %s.%s", module, name)).Add(gateway.Op{
		Kind:    gateway.OpDeleteElement,
		Module:  module,
		Element: name,
		Cascade: boolArg(req, "cascade", false),
	})
	if _, err := t.gateway.Apply(ctx, cs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete element: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Element %s.%s deleted", module, name)), nil
}

// ─── ElementGetTool ─────────────────────────────────────────────────────────

// ElementGetTool handles the element_get MCP tool.
type ElementGetTool struct {
	store *store.Store
}

// NewElementGetTool creates an ElementGetTool.
func NewElementGetTool(st *store.Store) *ElementGetTool {
	return &ElementGetTool{store: st}
}

// Definition returns the MCP tool definition for element_get.
func (t *ElementGetTool) Definition() mcp.Tool {
	return mcp.NewTool("element_get",
		mcp.WithDescription(
			"Fetch one code element exactly as it would render, including its "+
				"signature, body or value.",
		),
		mcp.WithString("module",
			mcp.Required(),
			mcp.Description("Owning module name"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Element name"),
		),
	)
}

// Handle processes the element_get tool call.
func (t *ElementGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module := req.GetString("module", "")
	name := req.GetString("name", "")
	if module == "" || name == "" {
		return mcp.NewToolResultError("'module' and 'name' are required"), nil
	}

	m, err := t.store.GetModuleByName(ctx, module)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get element: %v", err)), nil
	}
	e, err := t.store.GetElementByName(ctx, m.ID, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get element: %v", err)), nil
	}

	text := fmt.Sprintf("# %s.%s (%s)\n\n%s", module, e.Name, e.Kind, render.ElementText(*e))
	return mcp.NewToolResultText(text), nil
}
