package history

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/kbukum/dbfixture/ledger"
)

// AssertionError reports an expected change that did not happen.
type AssertionError struct {
	Model reflect.Type
	Mode  Kind
	// Ident is set when a specific key was required.
	Ident ledger.Ident
	// Count is set when exactly one change was required.
	Count int
	// Gone is set when the recorded row no longer exists.
	Gone bool
}

func (e *AssertionError) Error() string {
	name := ledger.ClassName(e.Model)
	switch {
	case e.Gone:
		return fmt.Sprintf("Instance of %s with identity %s was %s but no longer exists", name, e.Ident, e.Mode)
	case e.Count > 0:
		return fmt.Sprintf("%d instance(s) of %s %s, need only one", e.Count, name, e.Mode)
	case !e.Ident.IsZero():
		return fmt.Sprintf("No instances of %s with identity %s were %s", name, e.Ident, e.Mode)
	default:
		return fmt.Sprintf("No instances of %s were %s", name, e.Mode)
	}
}

// ChangesError reports changes where none were expected.
type ChangesError struct {
	Created *ledger.Ledger
	Updated *ledger.Ledger
	Deleted *ledger.Ledger
}

func (e *ChangesError) Error() string {
	var parts []string
	for _, c := range []struct {
		kind Kind
		l    *ledger.Ledger
	}{{Created, e.Created}, {Updated, e.Updated}, {Deleted, e.Deleted}} {
		if !c.l.Empty() {
			parts = append(parts, c.kind.String()+" "+c.l.String())
		}
	}
	return "expected no changes, got " + strings.Join(parts, ", ")
}

// AssertCreated requires at least one created entity of model's class, or
// the one with the given ident, and returns the matching entities.
func (h *History) AssertCreated(model any, ident ...any) ([]any, error) {
	idents, err := h.require(model, Created, ident)
	if err != nil {
		return nil, err
	}
	return h.resolve(model, idents)
}

// AssertUpdated is AssertCreated for updates.
func (h *History) AssertUpdated(model any, ident ...any) ([]any, error) {
	idents, err := h.require(model, Updated, ident)
	if err != nil {
		return nil, err
	}
	return h.resolve(model, idents)
}

// AssertDeleted requires deletes and returns their keys.
func (h *History) AssertDeleted(model any, ident ...any) (ledger.IdentSet, error) {
	return h.require(model, Deleted, ident)
}

// AssertCreatedOne requires exactly one created entity and returns it.
func (h *History) AssertCreatedOne(model any) (any, error) {
	return h.one(model, Created)
}

// AssertUpdatedOne requires exactly one updated entity and returns it.
func (h *History) AssertUpdatedOne(model any) (any, error) {
	return h.one(model, Updated)
}

// AssertDeletedOne requires exactly one delete and returns its key.
func (h *History) AssertDeletedOne(model any) (ledger.Ident, error) {
	idents, err := h.require(model, Deleted, nil)
	if err != nil {
		return ledger.Ident{}, err
	}
	if idents.Len() != 1 {
		return ledger.Ident{}, &AssertionError{Model: ledger.ClassOf(model), Mode: Deleted, Count: idents.Len()}
	}
	return idents.Sorted()[0], nil
}

// AssertNothingHappened fails if anything was created, updated or deleted.
func (h *History) AssertNothingHappened() error {
	if h.created.Empty() && h.updated.Empty() && h.deleted.Empty() {
		return nil
	}
	return &ChangesError{Created: h.created.Clone(), Updated: h.updated.Clone(), Deleted: h.deleted.Clone()}
}

func (h *History) require(model any, kind Kind, ident []any) (ledger.IdentSet, error) {
	idents, err := h.Last(model, kind)
	if err != nil {
		return nil, err
	}
	class := ledger.ClassOf(model)
	if idents.Len() == 0 {
		return nil, &AssertionError{Model: class, Mode: kind}
	}
	if len(ident) == 0 {
		return idents, nil
	}
	id := ledger.IdentFrom(ident...)
	if !idents.Has(id) {
		return nil, &AssertionError{Model: class, Mode: kind, Ident: id}
	}
	return ledger.NewIdentSet(id), nil
}

func (h *History) one(model any, kind Kind) (any, error) {
	idents, err := h.require(model, kind, nil)
	if err != nil {
		return nil, err
	}
	if idents.Len() != 1 {
		return nil, &AssertionError{Model: ledger.ClassOf(model), Mode: kind, Count: idents.Len()}
	}
	objs, err := h.resolve(model, idents)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, &AssertionError{Model: ledger.ClassOf(model), Mode: kind, Ident: idents.Sorted()[0], Gone: true}
	}
	return objs[0], nil
}
