package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stuart-dev/stuart/internal/store"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.Config{
		DataDir:   t.TempDir(),
		OpTimeout: 5 * time.Second,
	}
	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustModule creates a module or fails the test.
func mustModule(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	id, err := s.CreateModule(context.Background(), store.CreateModuleParams{Name: name})
	if err != nil {
		t.Fatalf("failed to create module %q: %v", name, err)
	}
	return id
}

// mustFunction creates a function element or fails the test.
func mustFunction(t *testing.T, s *store.Store, moduleID int64, name, body string) int64 {
	t.Helper()
	id, err := s.CreateElement(context.Background(), store.CreateElementParams{
		ModuleID: moduleID,
		Kind:     store.KindFunction,
		Name:     name,
		Body:     body,
	})
	if err != nil {
		t.Fatalf("failed to create function %q: %v", name, err)
	}
	return id
}

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := store.Config{DataDir: dir, OpTimeout: 5 * time.Second}

	// Open, insert, close
	s1, err := store.New(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s1.CreateModule(context.Background(), store.CreateModuleParams{Name: "m1"}); err != nil {
		t.Fatalf("create module: %v", err)
	}
	s1.Close()

	// Reopen; data should persist
	s2, err := store.New(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	m, err := s2.GetModuleByName(context.Background(), "m1")
	if err != nil {
		t.Fatalf("module not found after reopen: %v", err)
	}
	if m.Name != "m1" {
		t.Errorf("Name = %q, want %q", m.Name, "m1")
	}
}

// ─── Project ────────────────────────────────────────────────────────────────

func TestSaveProject_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveProject(ctx, store.Project{Name: "stuart", Description: "a tool"}); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	if err := s.SaveProject(ctx, store.Project{Name: "stuart", CurrentState: "migrating"}); err != nil {
		t.Fatalf("SaveProject (second): %v", err)
	}

	p, err := s.GetProject(ctx)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.CurrentState != "migrating" {
		t.Errorf("CurrentState = %q, want %q", p.CurrentState, "migrating")
	}
	if p.Description != "" {
		t.Errorf("Description = %q, want empty after upsert without description", p.Description)
	}
}

func TestGetProject_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background())
	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

// ─── Modules ────────────────────────────────────────────────────────────────

func TestCreateModule_DefaultFilename(t *testing.T) {
	s := newTestStore(t)
	id := mustModule(t, s, "pkg.util")

	m, err := s.GetModule(context.Background(), id)
	if err != nil {
		t.Fatalf("GetModule: %v", err)
	}
	if m.Filename != "pkg/util.py" {
		t.Errorf("Filename = %q, want %q", m.Filename, "pkg/util.py")
	}
}

func TestCreateModule_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	mustModule(t, s, "m1")

	_, err := s.CreateModule(context.Background(), store.CreateModuleParams{Name: "m1", Filename: "other.py"})
	var dup *store.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateNameError", err)
	}
	if dup.Name != "m1" {
		t.Errorf("duplicate Name = %q, want m1", dup.Name)
	}
}

func TestDeleteModule_WithElementsRequiresCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	mustFunction(t, s, mid, "f1", "return 1")

	err := s.DeleteModule(ctx, mid, false)
	var ref *store.ReferentialIntegrityError
	if !errors.As(err, &ref) {
		t.Fatalf("error = %v, want ReferentialIntegrityError", err)
	}

	// Store unchanged: module and element still present
	if _, err := s.GetModule(ctx, mid); err != nil {
		t.Errorf("module should still exist: %v", err)
	}

	if err := s.DeleteModule(ctx, mid, true); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if _, err := s.GetModule(ctx, mid); err == nil {
		t.Error("module should be gone after cascade delete")
	}
}

// ─── Elements ───────────────────────────────────────────────────────────────

func TestCreateElement_AssignsPositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")

	mustFunction(t, s, mid, "f1", "return 1")
	mustFunction(t, s, mid, "f2", "return 2")
	mustFunction(t, s, mid, "f3", "return 3")

	elems, err := s.ListElements(ctx, mid)
	if err != nil {
		t.Fatalf("ListElements: %v", err)
	}
	if len(elems) != 3 {
		t.Fatalf("got %d elements, want 3", len(elems))
	}
	for i, e := range elems {
		if e.Position != i {
			t.Errorf("element %q position = %d, want %d", e.Name, e.Position, i)
		}
	}
}

func TestCreateElement_DuplicateNameInModule(t *testing.T) {
	s := newTestStore(t)
	mid := mustModule(t, s, "m1")
	mustFunction(t, s, mid, "f1", "return 1")

	_, err := s.CreateElement(context.Background(), store.CreateElementParams{
		ModuleID: mid, Kind: store.KindFunction, Name: "f1", Body: "return 2",
	})
	var dup *store.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateNameError", err)
	}
	if dup.Scope != "m1" {
		t.Errorf("Scope = %q, want m1", dup.Scope)
	}
}

func TestCreateElement_SameNameAcrossModules(t *testing.T) {
	s := newTestStore(t)
	m1 := mustModule(t, s, "m1")
	m2 := mustModule(t, s, "m2")

	mustFunction(t, s, m1, "helper", "return 1")
	mustFunction(t, s, m2, "helper", "return 2")
}

func TestCreateElement_UnknownModule(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateElement(context.Background(), store.CreateElementParams{
		ModuleID: 999, Kind: store.KindFunction, Name: "f1",
	})
	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestCreateElement_InvalidKind(t *testing.T) {
	s := newTestStore(t)
	mid := mustModule(t, s, "m1")

	_, err := s.CreateElement(context.Background(), store.CreateElementParams{
		ModuleID: mid, Kind: "macro", Name: "x",
	})
	var ve *store.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestUpdateElement_Partial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	fid := mustFunction(t, s, mid, "f1", "return 1")

	body := "return 42"
	updated, err := s.UpdateElement(ctx, fid, store.UpdateElementParams{Body: &body})
	if err != nil {
		t.Fatalf("UpdateElement: %v", err)
	}
	if updated.Body != "return 42" {
		t.Errorf("Body = %q, want %q", updated.Body, "return 42")
	}
	if updated.Name != "f1" {
		t.Errorf("Name changed unexpectedly: %q", updated.Name)
	}
}

func TestGetElementByName(t *testing.T) {
	s := newTestStore(t)
	mid := mustModule(t, s, "m1")
	fid := mustFunction(t, s, mid, "f1", "return 1")

	e, err := s.GetElementByName(context.Background(), mid, "f1")
	if err != nil {
		t.Fatalf("GetElementByName: %v", err)
	}
	if e.ID != fid {
		t.Errorf("ID = %d, want %d", e.ID, fid)
	}
}

func TestQueryElements_KindFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	mustFunction(t, s, mid, "f1", "return 1")

	if _, err := s.CreateElement(ctx, store.CreateElementParams{
		ModuleID: mid, Kind: store.KindConstant, Name: "MAX", Value: "10",
	}); err != nil {
		t.Fatalf("create constant: %v", err)
	}

	consts, err := s.QueryElements(ctx, store.ElementFilter{ModuleID: mid, Kind: store.KindConstant})
	if err != nil {
		t.Fatalf("QueryElements: %v", err)
	}
	if len(consts) != 1 || consts[0].Name != "MAX" {
		t.Errorf("got %v, want single MAX constant", consts)
	}
}

// ─── Edges ──────────────────────────────────────────────────────────────────

func TestCreateEdge_Basic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")
	f2 := mustFunction(t, s, mid, "f2", "return f1()")

	if _, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	out, err := s.EdgesFrom(ctx, f2)
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(out) != 1 || out[0].ToID != f1 {
		t.Fatalf("EdgesFrom = %v, want single edge to f1", out)
	}

	in, err := s.EdgesTo(ctx, f1)
	if err != nil {
		t.Fatalf("EdgesTo: %v", err)
	}
	if len(in) != 1 || in[0].FromID != f2 {
		t.Fatalf("EdgesTo = %v, want single edge from f2", in)
	}
}

func TestCreateEdge_DanglingEndpoint(t *testing.T) {
	s := newTestStore(t)
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")

	_, err := s.CreateEdge(context.Background(), f1, 999, store.EdgeCalls)
	var nf *store.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestCreateEdge_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")
	f2 := mustFunction(t, s, mid, "f2", "return f1()")

	if _, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls); err != nil {
		t.Fatalf("first edge: %v", err)
	}
	_, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls)
	var dup *store.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateNameError", err)
	}
}

func TestDeleteElement_IncomingEdgesBlockWithoutCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")
	f2 := mustFunction(t, s, mid, "f2", "return f1()")

	if _, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	err := s.DeleteElement(ctx, f1, false)
	var ref *store.ReferentialIntegrityError
	if !errors.As(err, &ref) {
		t.Fatalf("error = %v, want ReferentialIntegrityError", err)
	}
	if ref.EdgeCount != 1 {
		t.Errorf("EdgeCount = %d, want 1", ref.EdgeCount)
	}

	// Store unchanged: element and edge both survive the failed delete.
	if _, err := s.GetElement(ctx, f1); err != nil {
		t.Errorf("f1 should still exist: %v", err)
	}
	edges, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("got %d edges, want 1 (unchanged)", len(edges))
	}
}

func TestDeleteElement_CascadeRemovesEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")
	f2 := mustFunction(t, s, mid, "f2", "return f1()")

	if _, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	if err := s.DeleteElement(ctx, f1, true); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}

	edges, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("got %d edges after cascade, want 0", len(edges))
	}
}

func TestDeleteElement_OutgoingEdgesDoNotBlock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")
	f2 := mustFunction(t, s, mid, "f2", "return f1()")

	if _, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	// f2 has only an outgoing edge; deleting it without cascade is fine and
	// removes the edge with it.
	if err := s.DeleteElement(ctx, f2, false); err != nil {
		t.Fatalf("delete f2: %v", err)
	}
	edges, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("got %d edges, want 0", len(edges))
	}
}

// ─── Imports ────────────────────────────────────────────────────────────────

func TestAddImport_Ordered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m1 := mustModule(t, s, "m1")
	m2 := mustModule(t, s, "m2")
	m3 := mustModule(t, s, "m3")

	if _, err := s.AddImport(ctx, m1, m3); err != nil {
		t.Fatalf("AddImport m3: %v", err)
	}
	if _, err := s.AddImport(ctx, m1, m2); err != nil {
		t.Fatalf("AddImport m2: %v", err)
	}

	imports, err := s.Imports(ctx, m1)
	if err != nil {
		t.Fatalf("Imports: %v", err)
	}
	if len(imports) != 2 {
		t.Fatalf("got %d imports, want 2", len(imports))
	}
	// Declaration order, not alphabetical
	if imports[0].ImportedID != m3 || imports[1].ImportedID != m2 {
		t.Errorf("import order = [%d, %d], want [%d, %d]",
			imports[0].ImportedID, imports[1].ImportedID, m3, m2)
	}
}

func TestAddImport_SelfRejected(t *testing.T) {
	s := newTestStore(t)
	m1 := mustModule(t, s, "m1")

	_, err := s.AddImport(context.Background(), m1, m1)
	var ve *store.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

// ─── Search ─────────────────────────────────────────────────────────────────

func TestSearch_FindsByBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	mustFunction(t, s, mid, "parse_config", "read the yaml configuration file")
	mustFunction(t, s, mid, "render_page", "emit html output")

	results, err := s.Search(ctx, "configuration", store.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Name != "parse_config" {
		t.Errorf("result = %q, want parse_config", results[0].Name)
	}
	if results[0].ModuleName != "m1" {
		t.Errorf("ModuleName = %q, want m1", results[0].ModuleName)
	}
}

func TestSearch_UpdatedBodyIsIndexed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	fid := mustFunction(t, s, mid, "f1", "original body")

	body := "completely rewritten implementation"
	if _, err := s.UpdateElement(ctx, fid, store.UpdateElementParams{Body: &body}); err != nil {
		t.Fatalf("UpdateElement: %v", err)
	}

	if results, _ := s.Search(ctx, "original", store.SearchOptions{}); len(results) != 0 {
		t.Errorf("stale index: got %d results for old body", len(results))
	}
	results, err := s.Search(ctx, "rewritten", store.SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results for new body, want 1", len(results))
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestWithTx_RollbackLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.CreateElement(store.CreateElementParams{
			ModuleID: mid, Kind: store.KindFunction, Name: "f1", Body: "return 1",
		}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	if err == nil {
		t.Fatal("expected error from aborted transaction")
	}

	elems, err := s.ListElements(ctx, mid)
	if err != nil {
		t.Fatalf("ListElements: %v", err)
	}
	if len(elems) != 0 {
		t.Errorf("got %d elements after rollback, want 0", len(elems))
	}
}

func TestWithTx_CommitPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		f1, err := tx.CreateElement(store.CreateElementParams{
			ModuleID: mid, Kind: store.KindFunction, Name: "f1", Body: "return 1",
		})
		if err != nil {
			return err
		}
		f2, err := tx.CreateElement(store.CreateElementParams{
			ModuleID: mid, Kind: store.KindFunction, Name: "f2", Body: "return f1()",
		})
		if err != nil {
			return err
		}
		_, err = tx.CreateEdge(f2, f1, store.EdgeCalls)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	elems, err := s.ListElements(ctx, mid)
	if err != nil {
		t.Fatalf("ListElements: %v", err)
	}
	if len(elems) != 2 {
		t.Errorf("got %d elements, want 2", len(elems))
	}
	edges, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Errorf("got %d edges, want 1", len(edges))
	}
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mid := mustModule(t, s, "m1")
	f1 := mustFunction(t, s, mid, "f1", "return 1")
	f2 := mustFunction(t, s, mid, "f2", "return f1()")
	if _, err := s.CreateEdge(ctx, f2, f1, store.EdgeCalls); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Modules != 1 || st.Functions != 2 || st.Edges != 1 {
		t.Errorf("Stats = %+v, want 1 module, 2 functions, 1 edge", st)
	}
}

// ─── Bounded timeouts ────────────────────────────────────────────────────────

func TestOpTimeout_SurfacesTimeoutError(t *testing.T) {
	// Migration runs without the operation timeout, so construction
	// succeeds even when the budget is too small for any query.
	cfg := store.Config{DataDir: t.TempDir(), OpTimeout: time.Nanosecond}
	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	_, err = s.ListModules(context.Background())
	if err == nil {
		t.Fatal("expected a timeout with a nanosecond budget")
	}
	var te *store.TimeoutError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want TimeoutError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("TimeoutError should unwrap to context.DeadlineExceeded, got %v", err)
	}
}
