// Package gateway is the sole write path into the element store.
//
// Every mutation, whether from the CLI, the MCP tools, the agent, or the
// editable round-trip, arrives here as a ChangeSet. The gateway validates it
// against
// the data-model invariants, applies it atomically in one transaction,
// updates the relationship index, and re-renders only the affected modules.
//
// Commits are serialized: one committer at a time. Reads elsewhere proceed
// concurrently under SQLite WAL snapshots. A failed consistency check halts
// all further mutations until a human reconciles the store.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/stuart-dev/stuart/internal/graph"
	"github.com/stuart-dev/stuart/internal/render"
	"github.com/stuart-dev/stuart/internal/store"
)

// Gateway validates and commits change sets.
type Gateway struct {
	store    *store.Store
	index    *graph.Index
	renderer *render.Renderer

	log *zap.Logger

	// commitMu serializes committers; acquired with ctx so no commit
	// blocks indefinitely.
	commitMu chan struct{}

	haltMu sync.RWMutex
	halted bool
}

// Result reports what an applied change set did.
type Result struct {
	ChangeSetID string   `json:"change_set_id"`
	OpsApplied  int      `json:"ops_applied"`
	Rendered    []string `json:"rendered,omitempty"`
}

// ApplyOptions tunes rendering after a commit.
type ApplyOptions struct {
	FullRender bool // re-render every module, not just the affected ones
	SkipRender bool // commit without touching the artifact directory
}

// New creates a Gateway.
func New(st *store.Store, idx *graph.Index, r *render.Renderer, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{store: st, index: idx, renderer: r, log: log, commitMu: make(chan struct{}, 1)}
	g.commitMu <- struct{}{}
	return g
}

// commitState accumulates the side effects of a change set so the index and
// renderer are only touched after the transaction commits.
type commitState struct {
	addedEdges      []store.Edge
	removedEdgeIDs  []int64
	removedElements []int64
	affected        map[int64]bool // module IDs needing re-render
	removedFiles    []string       // artifact files of deleted modules
}

// Apply validates and commits a change set with default rendering.
func (g *Gateway) Apply(ctx context.Context, cs *ChangeSet) (*Result, error) {
	return g.ApplyWith(ctx, cs, ApplyOptions{})
}

// ApplyWith validates and commits a change set. On any validation or
// integrity failure the whole set is rejected and the store is unchanged.
func (g *Gateway) ApplyWith(ctx context.Context, cs *ChangeSet, opts ApplyOptions) (*Result, error) {
	select {
	case <-g.commitMu:
	case <-ctx.Done():
		return nil, &store.TimeoutError{Op: "Apply", Err: ctx.Err()}
	}
	defer func() { g.commitMu <- struct{}{} }()

	if g.Halted() {
		return nil, &store.StoreCorruptionError{Detail: "mutations are halted pending manual reconciliation"}
	}

	if err := cs.Validate(); err != nil {
		return nil, err
	}

	state := &commitState{affected: make(map[int64]bool)}
	err := g.store.WithTx(ctx, func(tx *store.Tx) error {
		for i, op := range cs.Ops {
			if err := g.applyOp(tx, op, state); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op.Kind, err)
			}
		}
		return nil
	})
	if err != nil {
		g.log.Debug("change set rejected", zap.String("change_set", cs.ID), zap.Error(err))
		return nil, err
	}

	g.updateIndex(state)

	result := &Result{ChangeSetID: cs.ID, OpsApplied: len(cs.Ops)}
	g.render(ctx, cs, state, opts, result)

	g.log.Info("change set committed",
		zap.String("change_set", cs.ID),
		zap.Int("ops", len(cs.Ops)),
		zap.Int("rendered", len(result.Rendered)))
	return result, nil
}

// Check verifies the relationship index against the store. Divergence is
// fatal: the gateway refuses further mutations until reconciled.
func (g *Gateway) Check(ctx context.Context) error {
	select {
	case <-g.commitMu:
	case <-ctx.Done():
		return &store.TimeoutError{Op: "Check", Err: ctx.Err()}
	}
	defer func() { g.commitMu <- struct{}{} }()

	if err := g.index.Check(ctx, g.store); err != nil {
		var corrupt *store.StoreCorruptionError
		if errors.As(err, &corrupt) {
			g.haltMu.Lock()
			g.halted = true
			g.haltMu.Unlock()
			g.log.Error("relationship index diverged from store; mutations halted", zap.Error(err))
		}
		return err
	}
	return nil
}

// Halted reports whether mutations are blocked by a failed consistency check.
func (g *Gateway) Halted() bool {
	g.haltMu.RLock()
	defer g.haltMu.RUnlock()
	return g.halted
}

func (g *Gateway) applyOp(tx *store.Tx, op Op, state *commitState) error {
	switch op.Kind {
	case OpSetProject:
		return tx.SaveProject(*op.Project)

	case OpCreateModule:
		id, err := tx.CreateModule(store.CreateModuleParams{
			Name:        op.Module,
			Description: deref(op.Description),
			Filename:    deref(op.Filename),
		})
		if err != nil {
			return err
		}
		state.affected[id] = true
		return nil

	case OpUpdateModule:
		m, err := tx.GetModuleByName(op.Module)
		if err != nil {
			return err
		}
		if err := tx.UpdateModule(m.ID, store.UpdateModuleParams{
			Description: op.Description,
			Filename:    op.Filename,
		}); err != nil {
			return err
		}
		state.affected[m.ID] = true
		if op.Filename != nil && *op.Filename != m.Filename {
			state.removedFiles = append(state.removedFiles, m.Filename)
		}
		return nil

	case OpDeleteModule:
		m, err := tx.GetModuleByName(op.Module)
		if err != nil {
			return err
		}
		if op.Cascade {
			elems, err := tx.ListElements(m.ID)
			if err != nil {
				return err
			}
			for _, e := range elems {
				state.removedElements = append(state.removedElements, e.ID)
			}
		}
		if err := tx.DeleteModule(m.ID, op.Cascade); err != nil {
			return err
		}
		delete(state.affected, m.ID)
		state.removedFiles = append(state.removedFiles, m.Filename)
		return nil

	case OpCreateElement:
		m, err := tx.GetModuleByName(op.Module)
		if err != nil {
			return err
		}
		if _, err := tx.CreateElement(store.CreateElementParams{
			ModuleID:  m.ID,
			Kind:      op.ElementKind,
			Name:      op.Element,
			Signature: deref(op.Signature),
			Body:      deref(op.Body),
			Value:     deref(op.Value),
		}); err != nil {
			return err
		}
		state.affected[m.ID] = true
		return nil

	case OpUpdateElement:
		e, m, err := resolveElement(tx, ElementRef{Module: op.Module, Name: op.Element})
		if err != nil {
			return err
		}
		if err := tx.UpdateElement(e.ID, store.UpdateElementParams{
			Signature: op.Signature,
			Body:      op.Body,
			Value:     op.Value,
		}); err != nil {
			return err
		}
		state.affected[m.ID] = true
		return nil

	case OpDeleteElement:
		e, m, err := resolveElement(tx, ElementRef{Module: op.Module, Name: op.Element})
		if err != nil {
			return err
		}
		if err := tx.DeleteElement(e.ID, op.Cascade); err != nil {
			return err
		}
		state.removedElements = append(state.removedElements, e.ID)
		state.affected[m.ID] = true
		return nil

	case OpCreateEdge:
		from, _, err := resolveElement(tx, *op.From)
		if err != nil {
			return err
		}
		to, _, err := resolveElement(tx, *op.To)
		if err != nil {
			return err
		}
		if err := checkEdgeTarget(op.EdgeKind, to); err != nil {
			return err
		}
		id, err := tx.CreateEdge(from.ID, to.ID, op.EdgeKind)
		if err != nil {
			return err
		}
		state.addedEdges = append(state.addedEdges, store.Edge{
			ID: id, FromID: from.ID, ToID: to.ID, Kind: op.EdgeKind,
		})
		return nil

	case OpDeleteEdge:
		from, _, err := resolveElement(tx, *op.From)
		if err != nil {
			return err
		}
		to, _, err := resolveElement(tx, *op.To)
		if err != nil {
			return err
		}
		id, err := tx.DeleteEdgeBetween(from.ID, to.ID, op.EdgeKind)
		if err != nil {
			return err
		}
		state.removedEdgeIDs = append(state.removedEdgeIDs, id)
		return nil

	case OpAddImport:
		m, err := tx.GetModuleByName(op.Module)
		if err != nil {
			return err
		}
		imported, err := tx.GetModuleByName(op.Imported)
		if err != nil {
			return err
		}
		if _, err := tx.AddImport(m.ID, imported.ID); err != nil {
			return err
		}
		state.affected[m.ID] = true
		return nil

	case OpRemoveImport:
		m, err := tx.GetModuleByName(op.Module)
		if err != nil {
			return err
		}
		imported, err := tx.GetModuleByName(op.Imported)
		if err != nil {
			return err
		}
		if err := tx.RemoveImportBetween(m.ID, imported.ID); err != nil {
			return err
		}
		state.affected[m.ID] = true
		return nil
	}

	return &store.ValidationError{Invariant: "op-kind", Detail: fmt.Sprintf("unknown operation %q", op.Kind)}
}

func resolveElement(tx *store.Tx, ref ElementRef) (*store.Element, *store.Module, error) {
	m, err := tx.GetModuleByName(ref.Module)
	if err != nil {
		return nil, nil, err
	}
	e, err := tx.GetElementByName(m.ID, ref.Name)
	if err != nil {
		return nil, nil, err
	}
	return e, m, nil
}

// checkEdgeTarget enforces edge-kind semantics: calls point at functions,
// uses_type points at types.
func checkEdgeTarget(edgeKind string, to *store.Element) error {
	switch edgeKind {
	case store.EdgeCalls:
		if to.Kind != store.KindFunction {
			return &store.ValidationError{
				Invariant: "edge-target-kind",
				Detail:    fmt.Sprintf("calls edge must target a function, %q is a %s", to.Name, to.Kind),
			}
		}
	case store.EdgeUsesType:
		if to.Kind != store.KindType {
			return &store.ValidationError{
				Invariant: "edge-target-kind",
				Detail:    fmt.Sprintf("uses_type edge must target a type, %q is a %s", to.Name, to.Kind),
			}
		}
	}
	return nil
}

func (g *Gateway) updateIndex(state *commitState) {
	for _, id := range state.removedElements {
		g.index.RemoveElement(id)
	}
	for _, id := range state.removedEdgeIDs {
		g.index.RemoveEdge(id)
	}
	for _, e := range state.addedEdges {
		g.index.AddEdge(e)
	}
}

// render re-serializes the affected modules. Render failures do not undo the
// commit: the store is the source of truth and the artifact can be rebuilt
// with a full render. Failures are logged and the result stays partial.
func (g *Gateway) render(ctx context.Context, cs *ChangeSet, state *commitState, opts ApplyOptions, result *Result) {
	if g.renderer == nil || opts.SkipRender {
		return
	}

	for _, filename := range state.removedFiles {
		if err := g.renderer.Remove(filename); err != nil {
			g.log.Warn("removing stale artifact failed", zap.String("file", filename), zap.Error(err))
		}
	}

	var paths []string
	var err error
	if opts.FullRender {
		paths, err = g.renderer.RenderAll(ctx)
	} else {
		ids := make([]int64, 0, len(state.affected))
		for id := range state.affected {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		paths, err = g.renderer.RenderModules(ctx, ids)
	}
	if err != nil {
		g.log.Warn("re-render after commit failed; artifact is stale until the next render",
			zap.String("change_set", cs.ID), zap.Error(err))
	}
	result.Rendered = paths
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
