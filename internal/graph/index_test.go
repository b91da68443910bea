package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuart-dev/stuart/internal/store"
)

func edge(id, from, to int64, kind string) store.Edge {
	return store.Edge{ID: id, FromID: from, ToID: to, Kind: kind}
}

func TestNeighbors_DirectionAndKindFilter(t *testing.T) {
	idx := New()
	idx.AddEdge(edge(1, 2, 1, store.EdgeCalls))
	idx.AddEdge(edge(2, 2, 3, store.EdgeUsesType))
	idx.AddEdge(edge(3, 4, 2, store.EdgeCalls))

	out := idx.Neighbors(2, Outgoing, "")
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ElementID)
	assert.Equal(t, int64(3), out[1].ElementID)

	calls := idx.Neighbors(2, Outgoing, store.EdgeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, int64(1), calls[0].ElementID)

	in := idx.Neighbors(2, Incoming, "")
	require.Len(t, in, 1)
	assert.Equal(t, int64(4), in[0].ElementID)
	assert.Equal(t, Incoming, in[0].Direction)

	both := idx.Neighbors(2, Both, "")
	assert.Len(t, both, 3)
}

func TestSpine_DepthBounds(t *testing.T) {
	// 1 → 2 → 3 → 4, plus 1 → 5
	idx := New()
	idx.AddEdge(edge(1, 1, 2, store.EdgeCalls))
	idx.AddEdge(edge(2, 1, 5, store.EdgeUsesType))
	idx.AddEdge(edge(3, 2, 3, store.EdgeCalls))
	idx.AddEdge(edge(4, 3, 4, store.EdgeCalls))

	assert.Empty(t, idx.Spine(1, 0))
	assert.Equal(t, []int64{2, 5}, idx.Spine(1, 1))
	assert.Equal(t, []int64{2, 5, 3}, idx.Spine(1, 2))
	assert.Equal(t, []int64{2, 5, 3, 4}, idx.Spine(1, 3))
}

func TestSpine_Monotonic(t *testing.T) {
	idx := New()
	idx.AddEdge(edge(1, 1, 2, store.EdgeCalls))
	idx.AddEdge(edge(2, 2, 3, store.EdgeCalls))
	idx.AddEdge(edge(3, 3, 1, store.EdgeCalls)) // cycle back to the root
	idx.AddEdge(edge(4, 2, 4, store.EdgeUsesType))

	prev := map[int64]bool{}
	for depth := 0; depth <= 5; depth++ {
		current := idx.Spine(1, depth)
		for id := range prev {
			assert.Contains(t, current, id, "spine(%d) must contain everything in spine(%d)", depth, depth-1)
		}
		prev = map[int64]bool{}
		for _, id := range current {
			prev[id] = true
		}
	}
}

func TestSpine_CycleTerminates(t *testing.T) {
	idx := New()
	idx.AddEdge(edge(1, 1, 2, store.EdgeCalls))
	idx.AddEdge(edge(2, 2, 1, store.EdgeCalls))

	assert.Equal(t, []int64{2}, idx.Spine(1, 10))
}

func TestRemoveEdge(t *testing.T) {
	idx := New()
	idx.AddEdge(edge(1, 1, 2, store.EdgeCalls))
	idx.AddEdge(edge(2, 1, 3, store.EdgeCalls))

	idx.RemoveEdge(1)

	out := idx.Neighbors(1, Outgoing, "")
	require.Len(t, out, 1)
	assert.Equal(t, int64(3), out[0].ElementID)
	assert.Empty(t, idx.Neighbors(2, Incoming, ""))
}

func TestRemoveElement_DropsBothDirections(t *testing.T) {
	idx := New()
	idx.AddEdge(edge(1, 1, 2, store.EdgeCalls))
	idx.AddEdge(edge(2, 2, 3, store.EdgeCalls))
	idx.AddEdge(edge(3, 4, 2, store.EdgeUsesType))

	idx.RemoveElement(2)

	assert.Empty(t, idx.Neighbors(1, Outgoing, ""))
	assert.Empty(t, idx.Neighbors(3, Incoming, ""))
	assert.Empty(t, idx.Neighbors(4, Outgoing, ""))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir(), OpTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuildAndCheck_Consistent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mid, err := s.CreateModule(ctx, store.CreateModuleParams{Name: "m1"})
	require.NoError(t, err)
	f1, err := s.CreateElement(ctx, store.CreateElementParams{ModuleID: mid, Kind: store.KindFunction, Name: "f1"})
	require.NoError(t, err)
	f2, err := s.CreateElement(ctx, store.CreateElementParams{ModuleID: mid, Kind: store.KindFunction, Name: "f2"})
	require.NoError(t, err)
	_, err = s.CreateEdge(ctx, f2, f1, store.EdgeCalls)
	require.NoError(t, err)

	idx, err := Build(ctx, s)
	require.NoError(t, err)
	require.NoError(t, idx.Check(ctx, s))

	assert.Equal(t, []int64{f1}, idx.Spine(f2, 1))
}

func TestCheck_DetectsDivergence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mid, err := s.CreateModule(ctx, store.CreateModuleParams{Name: "m1"})
	require.NoError(t, err)
	f1, err := s.CreateElement(ctx, store.CreateElementParams{ModuleID: mid, Kind: store.KindFunction, Name: "f1"})
	require.NoError(t, err)
	f2, err := s.CreateElement(ctx, store.CreateElementParams{ModuleID: mid, Kind: store.KindFunction, Name: "f2"})
	require.NoError(t, err)

	idx, err := Build(ctx, s)
	require.NoError(t, err)

	// Mutate the store behind the index's back.
	_, err = s.CreateEdge(ctx, f2, f1, store.EdgeCalls)
	require.NoError(t, err)

	err = idx.Check(ctx, s)
	require.Error(t, err)
	var corrupt *store.StoreCorruptionError
	assert.ErrorAs(t, err, &corrupt)
}
