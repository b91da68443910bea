package storetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/store"
)

// ModuleCreateTool handles the module_create MCP tool.
type ModuleCreateTool struct {
	gateway *gateway.Gateway
}

// NewModuleCreateTool creates a ModuleCreateTool.
func NewModuleCreateTool(gw *gateway.Gateway) *ModuleCreateTool {
	return &ModuleCreateTool{gateway: gw}
}

// Definition returns the MCP tool definition for module_create.
func (t *ModuleCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("module_create",
		mcp.WithDescription(
			"Create a new module in the codebase store. Modules own elements "+
				"(functions, types, constants) and render to one source file each.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Module name, unique across the codebase (e.g. 'billing')"),
		),
		mcp.WithString("description",
			mcp.Description("What the module is for"),
		),
		mcp.WithString("filename",
			mcp.Description("Relative path of the rendered file (default derived from the name)"),
		),
	)
}

// Handle processes the module_create tool call.
func (t *ModuleCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	op := gateway.Op{Kind: gateway.OpCreateModule, Module: name}
	op.Description = optString(req, "description")
	op.Filename = optString(req, "filename")

	cs := gateway.NewChangeSet("tool: module_create " + name).Add(op)
	result, err := t.gateway.Apply(ctx, cs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create module: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Module %q created (change set %s)", name, result.ChangeSetID)), nil
}

// ─── ModuleListTool ─────────────────────────────────────────────────────────

// ModuleListTool handles the module_list MCP tool.
type ModuleListTool struct {
	store *store.Store
}

// NewModuleListTool creates a ModuleListTool.
func NewModuleListTool(st *store.Store) *ModuleListTool {
	return &ModuleListTool{store: st}
}

// Definition returns the MCP tool definition for module_list.
func (t *ModuleListTool) Definition() mcp.Tool {
	return mcp.NewTool("module_list",
		mcp.WithDescription(
			"List every module in the codebase store with its elements. "+
				"Use this to see what exists before creating or changing anything.",
		),
	)
}

// Handle processes the module_list tool call.
func (t *ModuleListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	modules, err := t.store.ListModules(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list modules: %v", err)), nil
	}
	if len(modules) == 0 {
		return mcp.NewToolResultText("No modules yet."), nil
	}

	var b strings.Builder
	for _, m := range modules {
		fmt.Fprintf(&b, "## %s (%s)\n", m.Name, m.Filename)
		if m.Description != "" {
			fmt.Fprintf(&b, "%s\n", m.Description)
		}
		elems, err := t.store.ListElements(ctx, m.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list elements of %s: %v", m.Name, err)), nil
		}
		for _, e := range elems {
			fmt.Fprintf(&b, "- %s %s", e.Kind, e.Name)
			if e.Signature != "" {
				fmt.Fprintf(&b, " (%s)", e.Signature)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

// ─── ModuleDeleteTool ───────────────────────────────────────────────────────

// ModuleDeleteTool handles the module_delete MCP tool.
type ModuleDeleteTool struct {
	gateway *gateway.Gateway
}

// NewModuleDeleteTool creates a ModuleDeleteTool.
func NewModuleDeleteTool(gw *gateway.Gateway) *ModuleDeleteTool {
	return &ModuleDeleteTool{gateway: gw}
}

// Definition returns the MCP tool definition for module_delete.
func (t *ModuleDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("module_delete",
		mcp.WithDescription(
			"Delete a module and remove its rendered file. Fails if elements in "+
				"other modules still reference its elements, unless cascade is set.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Module name"),
		),
		mcp.WithBoolean("cascade",
			mcp.Description("Also remove the module's elements and their edges (default: false)"),
		),
	)
}

// Handle processes the module_delete tool call.
func (t *ModuleDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	cs := gateway.NewChangeSet("tool: module_delete " + name).Add(gateway.Op{
		Kind:    gateway.OpDeleteModule,
		Module:  name,
		Cascade: boolArg(req, "cascade", false),
	})
	if _, err := t.gateway.Apply(ctx, cs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete module: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Module %q deleted", name)), nil
}
