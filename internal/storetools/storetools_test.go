package storetools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stuart-dev/stuart/internal/agent"
	"github.com/stuart-dev/stuart/internal/assemble"
	"github.com/stuart-dev/stuart/internal/gateway"
	"github.com/stuart-dev/stuart/internal/graph"
	"github.com/stuart-dev/stuart/internal/render"
	"github.com/stuart-dev/stuart/internal/store"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

type deps struct {
	store     *store.Store
	index     *graph.Index
	gateway   *gateway.Gateway
	renderer  *render.Renderer
	assembler *assemble.Assembler
}

func newDeps(t *testing.T) *deps {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir(), OpTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	idx := graph.New()
	r := render.New(s, t.TempDir(), nil)
	return &deps{
		store:     s,
		index:     idx,
		gateway:   gateway.New(s, idx, r, nil),
		renderer:  r,
		assembler: assemble.New(s, idx),
	}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, result *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatalf("tool returned error result: %s", resultText(result))
	}
}

func seedModule(t *testing.T, d *deps) {
	t.Helper()
	body1 := "def helper(x):\n    return x + 1"
	body2 := "def entry(x):\n    return helper(x)"
	cs := gateway.NewChangeSet("seed").
		Add(gateway.Op{Kind: gateway.OpCreateModule, Module: "m1"}).
		Add(gateway.Op{Kind: gateway.OpCreateElement, Module: "m1", Element: "helper",
			ElementKind: store.KindFunction, Body: &body1}).
		Add(gateway.Op{Kind: gateway.OpCreateElement, Module: "m1", Element: "entry",
			ElementKind: store.KindFunction, Body: &body2}).
		Add(gateway.Op{Kind: gateway.OpCreateEdge,
			From:     &gateway.ElementRef{Module: "m1", Name: "entry"},
			To:       &gateway.ElementRef{Module: "m1", Name: "helper"},
			EdgeKind: store.EdgeCalls})
	if _, err := d.gateway.Apply(context.Background(), cs); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}
}

// ─── ModuleCreateTool ────────────────────────────────────────────────────────

func TestModuleCreateTool_Definition(t *testing.T) {
	tool := NewModuleCreateTool(nil)
	def := tool.Definition()

	if def.Name != "module_create" {
		t.Errorf("tool name = %q, want module_create", def.Name)
	}
	if _, ok := def.InputSchema.Properties["name"]; !ok {
		t.Error("missing 'name' parameter")
	}
}

func TestModuleCreateTool_CreatesModule(t *testing.T) {
	d := newDeps(t)
	tool := NewModuleCreateTool(d.gateway)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"name":        "billing",
		"description": "invoicing",
	}))
	mustNotError(t, result, err)

	m, err := d.store.GetModuleByName(context.Background(), "billing")
	if err != nil {
		t.Fatalf("module not created: %v", err)
	}
	if m.Description != "invoicing" {
		t.Errorf("description = %q, want invoicing", m.Description)
	}
}

func TestModuleCreateTool_MissingName(t *testing.T) {
	d := newDeps(t)
	tool := NewModuleCreateTool(d.gateway)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for missing name")
	}
}

// ─── ElementCreateTool / ElementGetTool ──────────────────────────────────────

func TestElementCreateTool_RoutesThroughGateway(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewElementCreateTool(d.gateway)

	// Duplicate name must be rejected by gateway validation.
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"module": "m1",
		"name":   "helper",
		"kind":   "function",
		"body":   "shadow",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("duplicate element should produce an error result")
	}
	if !strings.Contains(resultText(result), "helper") {
		t.Errorf("error should name the element: %s", resultText(result))
	}
}

func TestElementGetTool_ReturnsContent(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewElementGetTool(d.store)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"module": "m1",
		"name":   "helper",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "m1.helper") {
		t.Errorf("missing element header: %s", text)
	}
	if !strings.Contains(text, "return x + 1") {
		t.Errorf("missing element body: %s", text)
	}
}

func TestElementUpdateTool_NothingToUpdate(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewElementUpdateTool(d.gateway)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"module": "m1",
		"name":   "helper",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("update with no fields should produce an error result")
	}
}

func TestElementDeleteTool_BlocksOnReferences(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewElementDeleteTool(d.gateway)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"module": "m1",
		"name":   "helper",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("deleting a referenced element without cascade should fail")
	}

	// With cascade it succeeds.
	result, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"module":  "m1",
		"name":    "helper",
		"cascade": true,
	}))
	mustNotError(t, result, err)
}

// ─── EdgeCreateTool ──────────────────────────────────────────────────────────

func TestEdgeCreateTool_CreatesEdge(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)

	body := "def extra(x):\n    return entry(x)"
	cs := gateway.NewChangeSet("extra").Add(gateway.Op{
		Kind: gateway.OpCreateElement, Module: "m1", Element: "extra",
		ElementKind: store.KindFunction, Body: &body,
	})
	if _, err := d.gateway.Apply(context.Background(), cs); err != nil {
		t.Fatalf("seeding extra element failed: %v", err)
	}

	tool := NewEdgeCreateTool(d.gateway)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"from_module":  "m1",
		"from_element": "extra",
		"to_module":    "m1",
		"to_element":   "entry",
		"kind":         "calls",
	}))
	mustNotError(t, result, err)

	edges, err := d.store.AllEdges(context.Background())
	if err != nil {
		t.Fatalf("AllEdges failed: %v", err)
	}
	if len(edges) != 2 {
		t.Errorf("edge count = %d, want 2", len(edges))
	}
}

// ─── SearchTool ──────────────────────────────────────────────────────────────

func TestSearchTool_FindsElements(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewSearchTool(d.store)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "helper",
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "m1.helper") {
		t.Errorf("search should find helper: %s", resultText(result))
	}
}

func TestSearchTool_NoMatches(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewSearchTool(d.store)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"query": "nonexistent",
	}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "No elements match") {
		t.Errorf("expected no-match message: %s", resultText(result))
	}
}

// ─── BuildContextTool ────────────────────────────────────────────────────────

func TestBuildContextTool_IncludesDependencies(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewBuildContextTool(d.store, d.assembler)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"module":  "m1",
		"element": "entry",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "# Context for m1.entry") {
		t.Errorf("missing context header: %s", text)
	}
	if !strings.Contains(text, "m1.helper") {
		t.Errorf("context should include the called function: %s", text)
	}
}

// ─── RenderTool / StatsTool / CheckTool ──────────────────────────────────────

func TestRenderTool_RendersAll(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewRenderTool(d.store, d.renderer)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "Rendered 1 file(s)") {
		t.Errorf("unexpected render output: %s", resultText(result))
	}
}

func TestStatsTool_Counts(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewStatsTool(d.store)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "Modules: 1") {
		t.Errorf("expected module count: %s", text)
	}
	if !strings.Contains(text, "Functions: 2") {
		t.Errorf("expected function count: %s", text)
	}
	if !strings.Contains(text, "Edges: 1") {
		t.Errorf("expected edge count: %s", text)
	}
}

func TestCheckTool_Consistent(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)
	tool := NewCheckTool(d.gateway)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	mustNotError(t, result, err)

	if !strings.Contains(resultText(result), "consistent") {
		t.Errorf("unexpected check output: %s", resultText(result))
	}
}

func TestCheckTool_DetectsDivergence(t *testing.T) {
	d := newDeps(t)
	seedModule(t, d)

	// Create an edge behind the gateway's back so the index diverges.
	ctx := context.Background()
	m, err := d.store.GetModuleByName(ctx, "m1")
	if err != nil {
		t.Fatalf("GetModuleByName failed: %v", err)
	}
	helper, err := d.store.GetElementByName(ctx, m.ID, "helper")
	if err != nil {
		t.Fatalf("GetElementByName failed: %v", err)
	}
	entry, err := d.store.GetElementByName(ctx, m.ID, "entry")
	if err != nil {
		t.Fatalf("GetElementByName failed: %v", err)
	}
	if _, err := d.store.CreateEdge(ctx, helper.ID, entry.ID, store.EdgeCalls); err != nil {
		t.Fatalf("CreateEdge failed: %v", err)
	}

	tool := NewCheckTool(d.gateway)
	result, err := tool.Handle(ctx, makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("divergence should produce an error result")
	}
}

func TestPackageLookupTool_Definition(t *testing.T) {
	tool := NewPackageLookupTool(agent.NewRegistry(nil))
	def := tool.Definition()

	if def.Name != "package_lookup" {
		t.Errorf("tool name = %q, want package_lookup", def.Name)
	}
	if _, ok := def.InputSchema.Properties["module"]; !ok {
		t.Error("missing 'module' parameter")
	}
}

func TestPackageLookupTool_RequiresModule(t *testing.T) {
	tool := NewPackageLookupTool(agent.NewRegistry(nil))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("missing module path should produce an error result")
	}
}
