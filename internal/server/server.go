// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the store, index, renderer, and
// gateway and injects them into the tools and resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/stuart-dev/stuart/internal/agent"
	"github.com/stuart-dev/stuart/internal/assemble"
	"github.com/stuart-dev/stuart/internal/config"
	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/graph"
	"github.com/stuart-dev/stuart/internal/prompts"
	"github.com/stuart-dev/stuart/internal/render"
	"github.com/stuart-dev/stuart/internal/resources"
	"github.com/stuart-dev/stuart/internal/store"
	"github.com/stuart-dev/stuart/internal/storetools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools and resources
// registered. This is the single place where all dependencies are resolved.
//
// The returned cleanup function closes the store's database connection and
// must be called on shutdown (typically via defer). It is always non-nil.
func New(cfg *config.Settings, log *zap.Logger) (*server.MCPServer, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	// --- Create shared dependencies ---

	st, err := store.New(store.Config{DataDir: cfg.DataDir, OpTimeout: cfg.OpTimeout})
	if err != nil {
		return nil, noop, fmt.Errorf("opening element store: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warn("closing store", zap.Error(err))
		}
	}

	idx, err := graph.Build(context.Background(), st)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("building relationship index: %w", err)
	}

	renderer := render.New(st, cfg.ArtifactDir, log)
	gw := gateway.New(st, idx, renderer, log)
	assembler := assemble.New(st, idx)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"stuart",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register store tools ---

	moduleCreate := storetools.NewModuleCreateTool(gw)
	s.AddTool(moduleCreate.Definition(), moduleCreate.Handle)

	moduleList := storetools.NewModuleListTool(st)
	s.AddTool(moduleList.Definition(), moduleList.Handle)

	moduleDelete := storetools.NewModuleDeleteTool(gw)
	s.AddTool(moduleDelete.Definition(), moduleDelete.Handle)

	elementCreate := storetools.NewElementCreateTool(gw)
	s.AddTool(elementCreate.Definition(), elementCreate.Handle)

	elementUpdate := storetools.NewElementUpdateTool(gw)
	s.AddTool(elementUpdate.Definition(), elementUpdate.Handle)

	elementDelete := storetools.NewElementDeleteTool(gw)
	s.AddTool(elementDelete.Definition(), elementDelete.Handle)

	elementGet := storetools.NewElementGetTool(st)
	s.AddTool(elementGet.Definition(), elementGet.Handle)

	edgeCreate := storetools.NewEdgeCreateTool(gw)
	s.AddTool(edgeCreate.Definition(), edgeCreate.Handle)

	edgeDelete := storetools.NewEdgeDeleteTool(gw)
	s.AddTool(edgeDelete.Definition(), edgeDelete.Handle)

	search := storetools.NewSearchTool(st)
	s.AddTool(search.Definition(), search.Handle)

	buildContext := storetools.NewBuildContextTool(st, assembler)
	s.AddTool(buildContext.Definition(), buildContext.Handle)

	renderTool := storetools.NewRenderTool(st, renderer)
	s.AddTool(renderTool.Definition(), renderTool.Handle)

	stats := storetools.NewStatsTool(st)
	s.AddTool(stats.Definition(), stats.Handle)

	check := storetools.NewCheckTool(gw)
	s.AddTool(check.Definition(), check.Handle)

	packageLookup := storetools.NewPackageLookupTool(agent.NewRegistry(log))
	s.AddTool(packageLookup.Definition(), packageLookup.Handle)

	// --- Register prompts ---

	explorePrompt := prompts.NewExplorePrompt()
	s.AddPrompt(explorePrompt.Definition(), explorePrompt.Handle)

	changePrompt := prompts.NewChangePrompt()
	s.AddPrompt(changePrompt.Definition(), changePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)
	s.AddResource(resourceHandler.ModulesResource(), resourceHandler.HandleModules)

	log.Info("server wired",
		zap.String("data_dir", cfg.DataDir),
		zap.String("artifact_dir", cfg.ArtifactDir))
	return s, cleanup, nil
}

// noop is a no-op cleanup function returned when wiring fails.
func noop() {}

// serverInstructions returns the system instructions that tell the AI how to
// work with the codebase store.
func serverInstructions() string {
	return `You have access to Stuart, a codebase-as-a-database MCP server.

## What Stuart Is

The codebase lives in a relational store, not in source files. Modules own
elements (functions, types, constants); typed edges record which element
calls or uses which. Source files are a READ-ONLY rendering of the store;
never edit them. All changes go through the store tools.

## Working With the Store

1. ORIENT: call module_list (or codebase_stats) to see what exists.
2. SEARCH: call element_search before writing anything new; reuse first.
3. CONTEXT: call context_build on an element before changing it, so you
   see the code it depends on, nearest dependencies first.
4. MUTATE: use module_create / element_create / element_update /
   element_delete. Every write is validated and atomic; a rejected call
   leaves the store untouched. Read the error, fix the call, retry.
5. RELATE: after creating a function, record a 'calls' edge to every
   function it invokes and a 'uses_type' edge to every type it uses.
   Edges are what make context_build useful for the next change.
6. RENDER: codebase_render serializes the store to files when a human
   wants to read the result. Rendering is deterministic; the same store
   state always produces identical files.

## Rules

- Write stateless, atomic functions with typed signatures.
- Element names are unique per module; element_create fails on
  duplicates; use element_update to change existing code.
- Deleting an element fails while others still reference it. Either
  update the referencing elements first or pass cascade knowingly.
- If consistency_check reports divergence, STOP mutating and tell the
  user: the server refuses writes until a human reconciles the store.`
}
