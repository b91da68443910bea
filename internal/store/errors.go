package store

import (
	"context"
	"errors"
	"fmt"
)

// DuplicateNameError is returned when a create would reuse a name that is
// already taken within the same scope (module names are global, element
// names are unique per module).
type DuplicateNameError struct {
	Scope string // "modules" for module names, otherwise the owning module name
	Name  string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate name %q in scope %q", e.Name, e.Scope)
}

// NotFoundError is returned when a lookup or a mutation references a record
// that does not exist.
type NotFoundError struct {
	Kind string // "module", "element", "edge", "import"
	Ref  string // name or numeric ID as given by the caller
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

// ReferentialIntegrityError is returned when a delete would leave dangling
// edges and the cascade flag was not set.
type ReferentialIntegrityError struct {
	Kind      string // "module" or "element"
	ID        int64
	Name      string
	EdgeCount int // live edges that still reference the record
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s %q (id %d) has %d live referencing edge(s); delete with cascade to remove them",
		e.Kind, e.Name, e.ID, e.EdgeCount)
}

// ValidationError is returned by the mutation gateway when a change set
// violates a data-model invariant. Invariant is a short machine-readable
// label; Detail explains what was wrong with this particular change.
type ValidationError struct {
	Invariant string
	Detail    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Invariant, e.Detail)
}

// ContextBudgetExceededError is returned by the context assembler when the
// target element alone does not fit the configured budget. It signals a
// policy misconfiguration rather than a traversal problem.
type ContextBudgetExceededError struct {
	ElementID int64
	Size      int
	Budget    int
}

func (e *ContextBudgetExceededError) Error() string {
	return fmt.Sprintf("element %d alone (%d bytes) exceeds the context budget of %d bytes",
		e.ElementID, e.Size, e.Budget)
}

// TimeoutError wraps a store operation that exceeded its bounded timeout.
// Callers may retry with backoff; the store never retries on its own.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("store operation %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StoreCorruptionError reports divergence between the relationship index
// and the authoritative store. It is fatal: the gateway refuses further
// mutations until a human reconciles the stores.
type StoreCorruptionError struct {
	Detail string
}

func (e *StoreCorruptionError) Error() string {
	return fmt.Sprintf("store corruption detected: %s", e.Detail)
}

// wrapTimeout converts context deadline errors into TimeoutError so callers
// can match on the taxonomy instead of context internals.
func wrapTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}
