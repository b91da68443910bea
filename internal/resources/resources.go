// Package resources implements MCP resource handlers for the element store.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (stuart://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/store"
)

// Handler manages the store's resource endpoints.
type Handler struct {
	store *store.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// StatusResource returns the MCP resource definition for project status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"stuart://project/status",
		"Project Status",
		mcp.WithResourceDescription("Project metadata and aggregate store counts"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the project record and store statistics as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	status := struct {
		Project *store.Project `json:"project,omitempty"`
		Stats   *store.Stats   `json:"stats"`
	}{Stats: stats}

	if p, err := h.store.GetProject(ctx); err == nil {
		status.Project = p
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// ModulesResource returns the MCP resource definition for the module inventory.
func (h *Handler) ModulesResource() mcp.Resource {
	return mcp.NewResource(
		"stuart://project/modules",
		"Module Inventory",
		mcp.WithResourceDescription("Every module with its elements, in declaration order"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleModules returns the full module inventory as JSON.
func (h *Handler) HandleModules(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	modules, err := h.store.ListModules(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	type moduleEntry struct {
		store.Module
		Elements []store.Element `json:"elements"`
	}
	inventory := make([]moduleEntry, 0, len(modules))
	for _, m := range modules {
		elems, err := h.store.ListElements(ctx, m.ID)
		if err != nil {
			return errorResource(req.Params.URI, err.Error()), nil
		}
		inventory = append(inventory, moduleEntry{Module: m, Elements: elems})
	}

	data, err := json.MarshalIndent(inventory, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling modules: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
