// Package graph maintains the relationship index: a derived, rebuildable
// adjacency view over the element store's edges.
//
// The index is never hand-edited. It is built from the store at startup and
// updated incrementally under the mutation gateway's commit lock; Check
// recomputes it from scratch and diffs the two, treating any divergence as
// store corruption.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stuart-dev/stuart/internal/store"
)

// Direction selects which edges Neighbors follows.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

// Neighbor is one directly connected element, with the edge that connects it.
type Neighbor struct {
	ElementID int64     `json:"element_id"`
	EdgeID    int64     `json:"edge_id"`
	Kind      string    `json:"kind"`
	Direction Direction `json:"direction"`
}

// Index is the in-memory adjacency view. Reads proceed concurrently; the
// gateway serializes writes.
type Index struct {
	mu  sync.RWMutex
	out map[int64][]store.Edge
	in  map[int64][]store.Edge
}

// New returns an empty index.
func New() *Index {
	return &Index{
		out: make(map[int64][]store.Edge),
		in:  make(map[int64][]store.Edge),
	}
}

// Build constructs the index from the store's full edge set.
func Build(ctx context.Context, st *store.Store) (*Index, error) {
	edges, err := st.AllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: loading edges: %w", err)
	}

	idx := New()
	for _, e := range edges {
		idx.insert(e)
	}
	return idx, nil
}

// insert assumes the caller holds the write lock or exclusive ownership.
// Edge IDs are monotonically increasing, so appends keep lists ordered.
func (idx *Index) insert(e store.Edge) {
	idx.out[e.FromID] = append(idx.out[e.FromID], e)
	idx.in[e.ToID] = append(idx.in[e.ToID], e)
}

// AddEdge records a newly committed edge.
func (idx *Index) AddEdge(e store.Edge) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.insert(e)
}

// RemoveEdge drops an edge by its ID.
func (idx *Index) RemoveEdge(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for from, edges := range idx.out {
		idx.out[from] = dropEdge(edges, id)
		if len(idx.out[from]) == 0 {
			delete(idx.out, from)
		}
	}
	for to, edges := range idx.in {
		idx.in[to] = dropEdge(edges, id)
		if len(idx.in[to]) == 0 {
			delete(idx.in, to)
		}
	}
}

// RemoveElement drops every edge touching the element. Used when the
// gateway deletes an element; with or without cascade, outgoing edges go
// either way.
func (idx *Index) RemoveElement(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, e := range idx.out[id] {
		idx.in[e.ToID] = dropEdge(idx.in[e.ToID], e.ID)
		if len(idx.in[e.ToID]) == 0 {
			delete(idx.in, e.ToID)
		}
	}
	for _, e := range idx.in[id] {
		idx.out[e.FromID] = dropEdge(idx.out[e.FromID], e.ID)
		if len(idx.out[e.FromID]) == 0 {
			delete(idx.out, e.FromID)
		}
	}
	delete(idx.out, id)
	delete(idx.in, id)
}

func dropEdge(edges []store.Edge, id int64) []store.Edge {
	result := edges[:0]
	for _, e := range edges {
		if e.ID != id {
			result = append(result, e)
		}
	}
	return result
}

// Neighbors returns the elements directly connected to elementID, ordered by
// edge creation. Kind filters by edge kind when non-empty.
func (idx *Index) Neighbors(elementID int64, dir Direction, kind string) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.neighborsLocked(elementID, dir, kind)
}

func (idx *Index) neighborsLocked(elementID int64, dir Direction, kind string) []Neighbor {
	var result []Neighbor

	if dir == Outgoing || dir == Both {
		for _, e := range idx.out[elementID] {
			if kind != "" && e.Kind != kind {
				continue
			}
			result = append(result, Neighbor{ElementID: e.ToID, EdgeID: e.ID, Kind: e.Kind, Direction: Outgoing})
		}
	}
	if dir == Incoming || dir == Both {
		for _, e := range idx.in[elementID] {
			if kind != "" && e.Kind != kind {
				continue
			}
			result = append(result, Neighbor{ElementID: e.FromID, EdgeID: e.ID, Kind: e.Kind, Direction: Incoming})
		}
	}
	return result
}

// Spine returns the elements reachable from elementID within depth hops,
// following outgoing edges (the element's dependencies). The start element
// is not included. Order is deterministic: breadth-first, ties by edge
// creation order.
func (idx *Index) Spine(elementID int64, depth int) []int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type queueItem struct {
		id    int64
		depth int
	}

	visited := map[int64]bool{elementID: true}
	queue := []queueItem{{id: elementID, depth: 0}}
	var result []int64

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= depth {
			continue
		}

		for _, e := range idx.out[current.id] {
			if visited[e.ToID] {
				continue
			}
			visited[e.ToID] = true
			result = append(result, e.ToID)
			queue = append(queue, queueItem{id: e.ToID, depth: current.depth + 1})
		}
	}
	return result
}

// snapshot returns all indexed edges sorted by ID.
func (idx *Index) snapshot() []store.Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var edges []store.Edge
	for _, out := range idx.out {
		edges = append(edges, out...)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}

// Check recomputes the index from the store and diffs it against the
// incremental version. Divergence means the derived view no longer matches
// the source of truth: a StoreCorruptionError that must halt mutations.
func (idx *Index) Check(ctx context.Context, st *store.Store) error {
	fresh, err := st.AllEdges(ctx)
	if err != nil {
		return fmt.Errorf("graph: consistency check: %w", err)
	}

	have := idx.snapshot()
	if len(have) != len(fresh) {
		return &store.StoreCorruptionError{
			Detail: fmt.Sprintf("index has %d edges, store has %d", len(have), len(fresh)),
		}
	}
	for i := range fresh {
		if have[i].ID != fresh[i].ID || have[i].FromID != fresh[i].FromID ||
			have[i].ToID != fresh[i].ToID || have[i].Kind != fresh[i].Kind {
			return &store.StoreCorruptionError{
				Detail: fmt.Sprintf("edge %d diverged: index %+v, store %+v", fresh[i].ID, have[i], fresh[i]),
			}
		}
	}
	return nil
}
