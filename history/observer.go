package history

import (
	"maps"
	"slices"

	"github.com/kbukum/dbfixture/ledger"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/session"
)

// objectSet is an insertion-ordered set of entity pointers.
type objectSet struct {
	index map[any]struct{}
	items []any
}

func (o *objectSet) add(objs ...any) {
	if o.index == nil {
		o.index = make(map[any]struct{})
	}
	for _, obj := range objs {
		if _, ok := o.index[obj]; ok {
			continue
		}
		o.index[obj] = struct{}{}
		o.items = append(o.items, obj)
	}
}

// frame holds what the flushes of one transaction level wrote.
type frame struct {
	created objectSet
	updated objectSet
	deleted objectSet
}

func (f *frame) merge(o *frame) {
	f.created.add(o.created.items...)
	f.updated.add(o.updated.items...)
	f.deleted.add(o.deleted.items...)
}

// observer keeps the session callbacks off History's method set.
type observer struct{ h *History }

func (o observer) AfterFlush(s *session.Session, fc *session.FlushContext) {
	depth := s.Transaction().Depth()
	f, ok := o.h.frames[depth]
	if !ok {
		f = &frame{}
		o.h.frames[depth] = f
	}
	f.created.add(fc.New...)
	f.updated.add(fc.Dirty...)
	f.deleted.add(fc.Deleted...)
}

func (o observer) AfterCommit(s *session.Session) {
	h := o.h
	t := s.Transaction()
	if t.Nested() {
		if f, ok := h.frames[t.Depth()]; ok {
			delete(h.frames, t.Depth())
			parent, ok := h.frames[t.Depth()-1]
			if !ok {
				parent = &frame{}
				h.frames[t.Depth()-1] = parent
			}
			parent.merge(f)
		}
		return
	}
	h.promote(s)
}

func (o observer) AfterSoftRollback(_ *session.Session, previous *session.Transaction) {
	h := o.h
	if !previous.Nested() {
		h.frames = make(map[int]*frame)
		return
	}
	for depth := range h.frames {
		if depth >= previous.Depth() {
			delete(h.frames, depth)
		}
	}
}

// promote resolves every frame to keys and folds them into the ledgers so
// that each key ends in exactly one of them.
func (h *History) promote(s *session.Session) {
	all := &frame{}
	for _, depth := range slices.Sorted(maps.Keys(h.frames)) {
		all.merge(h.frames[depth])
	}
	h.frames = make(map[int]*frame)

	created := keysOf(s, all.created.items)
	updated := keysOf(s, all.updated.items)
	deleted := keysOf(s, all.deleted.items)

	created.Subtract(deleted)
	updated.Subtract(deleted)
	updated.Subtract(created)

	h.created.Merge(created)
	h.updated.Merge(updated)
	h.deleted.Merge(deleted)
	h.created.Subtract(deleted)
	h.updated.Subtract(deleted)

	if created.Len()+updated.Len()+deleted.Len() > 0 {
		h.log.Debug("Changes committed", logger.Fields(
			"created", created.Len(), "updated", updated.Len(), "deleted", deleted.Len(),
		))
	}
}

func keysOf(s *session.Session, objs []any) *ledger.Ledger {
	l := ledger.New()
	for _, obj := range objs {
		if key, ok, err := s.IdentityKey(obj); err == nil && ok {
			l.AddKey(key)
		}
	}
	return l
}
