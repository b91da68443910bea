// Package assemble builds minimal, ordered generation contexts around a
// target element by traversing the relationship index breadth-first.
//
// The assembler favors fewer, more relevant elements over completeness:
// direct dependencies come before indirect ones, and traversal stops as soon
// as the element budget is spent.
package assemble

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stuart-dev/stuart/internal/graph"
	"github.com/stuart-dev/stuart/internal/store"
)

// Default policy limits, used when a Policy field is zero.
const (
	DefaultMaxDepth    = 2
	DefaultMaxElements = 20
	MaxDepthCeiling    = 5
)

// Policy bounds a context assembly request.
type Policy struct {
	MaxDepth    int      `json:"max_depth,omitempty"`    // traversal depth (default 2, capped at 5)
	MaxElements int      `json:"max_elements,omitempty"` // element-count budget including the target (default 20)
	MaxBytes    int      `json:"max_bytes,omitempty"`    // total content budget in bytes (0 = unlimited)
	Kinds       []string `json:"kinds,omitempty"`        // edge-kind filter (empty = all)
}

func (p Policy) normalized() Policy {
	if p.MaxDepth <= 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.MaxDepth > MaxDepthCeiling {
		p.MaxDepth = MaxDepthCeiling
	}
	if p.MaxElements <= 0 {
		p.MaxElements = DefaultMaxElements
	}
	return p
}

func (p Policy) allowsKind(kind string) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Item is one element in the assembled context.
type Item struct {
	Element    store.Element `json:"element"`
	ModuleName string        `json:"module_name"`
	Depth      int           `json:"depth"`
}

// Result is a deterministic ordered context: the target first, then its
// dependencies by increasing depth.
type Result struct {
	Target    Item   `json:"target"`
	Items     []Item `json:"items"`
	Truncated bool   `json:"truncated"`
}

// Assembler produces contexts from the store and relationship index.
type Assembler struct {
	store *store.Store
	index *graph.Index
}

// New creates an Assembler.
func New(st *store.Store, idx *graph.Index) *Assembler {
	return &Assembler{store: st, index: idx}
}

// Assemble traverses from the target element and returns its context under
// the given policy. It fails with ContextBudgetExceededError only when the
// target alone does not fit the byte budget, a policy misconfiguration.
func (a *Assembler) Assemble(ctx context.Context, elementID int64, pol Policy) (*Result, error) {
	pol = pol.normalized()

	target, err := a.store.GetElement(ctx, elementID)
	if err != nil {
		return nil, err
	}
	targetMod, err := a.store.GetModule(ctx, target.ModuleID)
	if err != nil {
		return nil, err
	}

	if pol.MaxBytes > 0 && contentSize(*target) > pol.MaxBytes {
		return nil, &store.ContextBudgetExceededError{
			ElementID: elementID,
			Size:      contentSize(*target),
			Budget:    pol.MaxBytes,
		}
	}

	result := &Result{
		Target: Item{Element: *target, ModuleName: targetMod.Name, Depth: 0},
	}

	remaining := pol.MaxElements - 1 // the target occupies one slot
	usedBytes := contentSize(*target)
	visited := map[int64]bool{elementID: true}
	frontier := []int64{elementID}
	moduleNames := map[int64]string{target.ModuleID: targetMod.Name}

	for depth := 1; depth <= pol.MaxDepth && len(frontier) > 0 && remaining > 0; depth++ {
		// Collect this level's unvisited dependencies in frontier order.
		var ids []int64
		for _, id := range frontier {
			for _, n := range a.index.Neighbors(id, graph.Outgoing, "") {
				if !pol.allowsKind(n.Kind) || visited[n.ElementID] {
					continue
				}
				visited[n.ElementID] = true
				ids = append(ids, n.ElementID)
			}
		}
		if len(ids) == 0 {
			break
		}

		level, err := a.loadLevel(ctx, ids, moduleNames, depth)
		if err != nil {
			return nil, err
		}

		// Within a level, declaration order in the owning module breaks ties.
		sort.SliceStable(level, func(i, j int) bool {
			if level[i].ModuleName != level[j].ModuleName {
				return level[i].ModuleName < level[j].ModuleName
			}
			return level[i].Element.Position < level[j].Element.Position
		})

		frontier = frontier[:0]
		for _, item := range level {
			if remaining == 0 {
				result.Truncated = true
				return result, nil
			}
			if pol.MaxBytes > 0 && usedBytes+contentSize(item.Element) > pol.MaxBytes {
				result.Truncated = true
				return result, nil
			}
			result.Items = append(result.Items, item)
			usedBytes += contentSize(item.Element)
			remaining--
			frontier = append(frontier, item.Element.ID)
		}
	}

	return result, nil
}

func (a *Assembler) loadLevel(ctx context.Context, ids []int64, moduleNames map[int64]string, depth int) ([]Item, error) {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		e, err := a.store.GetElement(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading context element %d: %w", id, err)
		}
		name, ok := moduleNames[e.ModuleID]
		if !ok {
			m, err := a.store.GetModule(ctx, e.ModuleID)
			if err != nil {
				return nil, fmt.Errorf("loading module %d: %w", e.ModuleID, err)
			}
			name = m.Name
			moduleNames[e.ModuleID] = name
		}
		items = append(items, Item{Element: *e, ModuleName: name, Depth: depth})
	}
	return items, nil
}

func contentSize(e store.Element) int {
	return len(e.Signature) + len(e.Body) + len(e.Value)
}

// Format renders an assembled context as readable markdown for an agent
// prompt or a human reviewer.
func Format(r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Context for %s.%s (%s)\n\n", r.Target.ModuleName, r.Target.Element.Name, r.Target.Element.Kind)
	writeElement(&b, r.Target)

	if len(r.Items) == 0 {
		b.WriteString("No dependencies.\n")
		return b.String()
	}

	currentDepth := 0
	for _, item := range r.Items {
		if item.Depth != currentDepth {
			currentDepth = item.Depth
			label := "Direct dependencies"
			if currentDepth > 1 {
				label = fmt.Sprintf("Depth %d dependencies", currentDepth)
			}
			fmt.Fprintf(&b, "## %s\n\n", label)
		}
		writeElement(&b, item)
	}

	if r.Truncated {
		b.WriteString("_(context truncated by budget)_\n")
	}
	return b.String()
}

func writeElement(b *strings.Builder, item Item) {
	fmt.Fprintf(b, "### %s.%s (%s)\n\n", item.ModuleName, item.Element.Name, item.Element.Kind)
	switch item.Element.Kind {
	case store.KindConstant:
		fmt.Fprintf(b, "```\n%s = %s\n```\n\n", item.Element.Name, item.Element.Value)
	default:
		if item.Element.Signature != "" {
			fmt.Fprintf(b, "```\n%s\n%s\n```\n\n", item.Element.Signature, item.Element.Body)
		} else {
			fmt.Fprintf(b, "```\n%s\n```\n\n", item.Element.Body)
		}
	}
}
