package gateway

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stuart-dev/stuart/internal/store"
)

// OpKind identifies one mutation within a change set.
type OpKind string

const (
	OpSetProject    OpKind = "set_project"
	OpCreateModule  OpKind = "create_module"
	OpUpdateModule  OpKind = "update_module"
	OpDeleteModule  OpKind = "delete_module"
	OpCreateElement OpKind = "create_element"
	OpUpdateElement OpKind = "update_element"
	OpDeleteElement OpKind = "delete_element"
	OpCreateEdge    OpKind = "create_edge"
	OpDeleteEdge    OpKind = "delete_edge"
	OpAddImport     OpKind = "add_import"
	OpRemoveImport  OpKind = "remove_import"
)

// ElementRef addresses an element by module and name, so callers (agents,
// the CLI) never need numeric IDs.
type ElementRef struct {
	Module string `json:"module"`
	Name   string `json:"name"`
}

func (r ElementRef) String() string {
	return r.Module + "." + r.Name
}

// Op is a single mutation. Which fields apply depends on Kind; Validate
// rejects malformed combinations before anything touches the store.
type Op struct {
	Kind OpKind `json:"op"`

	// set_project
	Project *store.Project `json:"project,omitempty"`

	// module ops, and the owning module for element ops
	Module      string  `json:"module,omitempty"`
	Description *string `json:"description,omitempty"`
	Filename    *string `json:"filename,omitempty"`

	// element ops
	Element     string  `json:"element,omitempty"`
	ElementKind string  `json:"element_kind,omitempty"`
	Signature   *string `json:"signature,omitempty"`
	Body        *string `json:"body,omitempty"`
	Value       *string `json:"value,omitempty"`

	// edge ops
	From     *ElementRef `json:"from,omitempty"`
	To       *ElementRef `json:"to,omitempty"`
	EdgeKind string      `json:"edge_kind,omitempty"`

	// import ops
	Imported string `json:"imported,omitempty"`

	// delete ops
	Cascade bool `json:"cascade,omitempty"`
}

// ChangeSet is an ordered list of mutations applied atomically.
type ChangeSet struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
	Ops    []Op   `json:"ops"`
}

// NewChangeSet creates an empty change set with a fresh ID.
func NewChangeSet(reason string) *ChangeSet {
	return &ChangeSet{ID: uuid.NewString(), Reason: reason}
}

// Add appends an op and returns the change set for chaining.
func (cs *ChangeSet) Add(op Op) *ChangeSet {
	cs.Ops = append(cs.Ops, op)
	return cs
}

// Validate performs the static (store-independent) invariant checks on the
// change set. Reference resolution and scope uniqueness are checked at apply
// time inside the transaction, so rejection is atomic either way.
func (cs *ChangeSet) Validate() error {
	if len(cs.Ops) == 0 {
		return &store.ValidationError{Invariant: "change-set-empty", Detail: "change set has no operations"}
	}

	for i, op := range cs.Ops {
		if err := op.validate(); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

func (op Op) validate() error {
	fail := func(invariant, detail string) error {
		return &store.ValidationError{Invariant: invariant, Detail: detail}
	}

	switch op.Kind {
	case OpSetProject:
		if op.Project == nil || op.Project.Name == "" {
			return fail("project-name", "set_project requires a project with a name")
		}
	case OpCreateModule, OpUpdateModule, OpDeleteModule:
		if op.Module == "" {
			return fail("module-name", string(op.Kind)+" requires a module name")
		}
	case OpCreateElement:
		if op.Module == "" || op.Element == "" {
			return fail("element-name", "create_element requires module and element names")
		}
		if !store.ValidKind(op.ElementKind) {
			return fail("element-kind", fmt.Sprintf("unknown element kind %q", op.ElementKind))
		}
	case OpUpdateElement, OpDeleteElement:
		if op.Module == "" || op.Element == "" {
			return fail("element-name", string(op.Kind)+" requires module and element names")
		}
	case OpCreateEdge, OpDeleteEdge:
		if op.From == nil || op.To == nil || op.From.Module == "" || op.From.Name == "" ||
			op.To.Module == "" || op.To.Name == "" {
			return fail("edge-endpoints", string(op.Kind)+" requires fully qualified from and to references")
		}
		if !store.ValidEdgeKind(op.EdgeKind) {
			return fail("edge-kind", fmt.Sprintf("unknown edge kind %q", op.EdgeKind))
		}
	case OpAddImport, OpRemoveImport:
		if op.Module == "" || op.Imported == "" {
			return fail("import-refs", string(op.Kind)+" requires module and imported names")
		}
	default:
		return fail("op-kind", fmt.Sprintf("unknown operation %q", op.Kind))
	}
	return nil
}
