package session

import (
	"fmt"
	"maps"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/logger"
)

// Transaction is one level of the session's transaction stack. The outermost
// level owns a database transaction; nested levels own a savepoint in it.
type Transaction struct {
	parent    *Transaction
	tx        *gorm.DB
	savepoint string
	depth     int

	// flushed within this level, used to undo it
	inserted []*entry
	removed  []*entry
	prior    map[*entry]*priorState
}

type priorState struct {
	snapshot map[string]any
	links    map[string]linkSet
}

// Nested reports whether t is a savepoint level.
func (t *Transaction) Nested() bool { return t != nil && t.parent != nil }

// Depth is 1 for the outermost level and grows by one per nested level.
// A nil Transaction has depth 0.
func (t *Transaction) Depth() int {
	if t == nil {
		return 0
	}
	return t.depth
}

// Parent returns the enclosing level, nil for the outermost one.
func (t *Transaction) Parent() *Transaction {
	if t == nil {
		return nil
	}
	return t.parent
}

// remember keeps e's state as of the start of this level.
func (t *Transaction) remember(e *entry) {
	if _, ok := t.prior[e]; ok {
		return
	}
	links := make(map[string]linkSet, len(e.links))
	for name, set := range e.links {
		links[name] = maps.Clone(set)
	}
	t.prior[e] = &priorState{snapshot: maps.Clone(e.snapshot), links: links}
}

// absorb hands a committed child's undo records to t.
func (t *Transaction) absorb(child *Transaction) {
	t.inserted = append(t.inserted, child.inserted...)
	t.removed = append(t.removed, child.removed...)
	for e, p := range child.prior {
		if _, ok := t.prior[e]; !ok {
			t.prior[e] = p
		}
	}
}

// Transaction returns the innermost open level, or nil.
func (s *Session) Transaction() *Transaction { return s.txn }

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool { return s.txn != nil }

// Begin opens the outermost transaction explicitly.
func (s *Session) Begin() error {
	if s.txn != nil {
		return apperrors.TransactionActive()
	}
	return s.beginOuter()
}

func (s *Session) beginOuter() error {
	tx := s.db.WithContext(s.ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("session begin: %w", tx.Error)
	}
	s.txn = &Transaction{tx: tx, depth: 1, prior: make(map[*entry]*priorState)}
	s.log.Debug("Transaction started", logger.Fields(logger.FieldDepth, 1))
	return nil
}

// BeginNested flushes pending changes and opens a savepoint level, beginning
// the outermost transaction first if none is open.
func (s *Session) BeginNested() error {
	if s.txn == nil {
		if err := s.beginOuter(); err != nil {
			return err
		}
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if s.txn == nil {
		// the flush rolled everything back
		return apperrors.NoTransaction("begin nested")
	}
	s.savepoints++
	name := fmt.Sprintf("sp_%d", s.savepoints)
	if err := s.txn.tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("session savepoint: %w", err)
	}
	s.txn = &Transaction{
		parent:    s.txn,
		tx:        s.txn.tx,
		savepoint: name,
		depth:     s.txn.depth + 1,
		prior:     make(map[*entry]*priorState),
	}
	s.log.Debug("Savepoint started", logger.Fields(logger.FieldDepth, s.txn.depth, "savepoint", name))
	return nil
}

// Commit flushes and commits the innermost level. Outside a transaction it
// begins one first, unless the session is in autocommit mode.
func (s *Session) Commit() error {
	if s.txn == nil {
		if s.autocommit {
			return apperrors.NoTransaction("commit")
		}
		if err := s.beginOuter(); err != nil {
			return err
		}
	}
	if err := s.Flush(); err != nil {
		return err
	}
	t := s.txn
	if t == nil {
		return apperrors.NoTransaction("commit")
	}

	_, span := s.startSpan("session.commit")
	span.SetAttributes(
		attribute.Bool("session.nested", t.Nested()),
		attribute.Int("session.depth", t.depth),
	)
	var err error
	if t.Nested() {
		err = t.tx.Exec("RELEASE SAVEPOINT " + t.savepoint).Error
	} else {
		err = t.tx.Commit().Error
	}
	endSpan(span, err)
	if err != nil {
		if !t.Nested() {
			// the driver has closed the transaction either way
			s.undo(t)
			s.txn = nil
			s.events.afterSoftRollback(s, t)
		}
		return fmt.Errorf("session commit: %w", err)
	}
	s.log.Debug("Transaction committed", logger.Fields(logger.FieldDepth, t.depth, logger.FieldNested, t.Nested()))

	s.events.afterCommit(s)

	if t.parent != nil {
		t.parent.absorb(t)
	}
	s.txn = t.parent
	return nil
}

// Rollback rolls back the innermost level. Rows it inserted leave the
// identity map, rows it deleted come back, and column values revert.
// Without a transaction it only discards pending changes.
func (s *Session) Rollback() error {
	t := s.txn
	if t == nil {
		s.discardPending(0)
		return nil
	}

	_, span := s.startSpan("session.rollback")
	span.SetAttributes(
		attribute.Bool("session.nested", t.Nested()),
		attribute.Int("session.depth", t.depth),
	)
	var err error
	if t.Nested() {
		err = t.tx.RollbackTo(t.savepoint).Error
		if err == nil {
			err = t.tx.Exec("RELEASE SAVEPOINT " + t.savepoint).Error
		}
	} else {
		err = t.tx.Rollback().Error
	}
	endSpan(span, err)

	s.undo(t)
	s.txn = t.parent
	s.log.Debug("Transaction rolled back", logger.Fields(logger.FieldDepth, t.depth, logger.FieldNested, t.Nested()))
	s.events.afterSoftRollback(s, t)

	if err != nil {
		return fmt.Errorf("session rollback: %w", err)
	}
	return nil
}

// rollbackAll rolls back every open level, innermost first.
func (s *Session) rollbackAll() error {
	var first error
	for s.txn != nil {
		if err := s.Rollback(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// undo reverts the session state to what it was when t began.
func (s *Session) undo(t *Transaction) {
	for _, e := range t.inserted {
		s.forget(e)
	}
	for _, e := range t.removed {
		e.state = statePersistent
		e.deleted = false
		s.identity[keyOf(e.key)] = e
		if _, ok := s.entries[e.obj]; !ok {
			s.track(e)
		}
	}
	for e, p := range t.prior {
		e.snapshot = p.snapshot
		e.links = p.links
	}

	threshold := t.depth
	if !t.Nested() {
		threshold = 0
	}
	s.discardPending(threshold)

	for _, e := range s.order {
		if e.state != statePersistent {
			continue
		}
		s.restoreFields(e)
		s.restoreLinks(e)
	}
}

// discardPending drops pending entities and delete marks made at or above
// the given depth.
func (s *Session) discardPending(depth int) {
	for _, e := range append([]*entry(nil), s.pending...) {
		if e.depth >= depth {
			s.forget(e)
		}
	}
	kept := s.deleting[:0]
	for _, e := range s.deleting {
		if e.deleteDepth >= depth {
			e.deleted = false
			continue
		}
		kept = append(kept, e)
	}
	s.deleting = kept
}

// restoreLinks rebuilds many-to-many fields that no longer match the
// recorded links, keeping the current element order where possible.
func (s *Session) restoreLinks(e *entry) {
	for _, rel := range relations(e.sch) {
		if rel.Type != schema.Many2Many || rel.FieldSchema == nil {
			continue
		}
		want := e.links[rel.Name]
		if current, complete := s.linkTargets(e, rel); complete && sameLinks(current, want) {
			continue
		}
		field := rel.Field.ReflectValueOf(s.ctx, e.rv)
		if field.Kind() != reflect.Slice || !field.CanSet() {
			continue
		}
		elem := field.Type().Elem()
		out := reflect.MakeSlice(field.Type(), 0, len(want))
		placed := make(map[string]bool, len(want))
		appendTarget := func(obj any) {
			v := reflect.ValueOf(obj)
			if elem.Kind() != reflect.Pointer {
				v = v.Elem()
			}
			out = reflect.Append(out, v)
		}
		for _, obj := range s.related(rel, e.rv) {
			ident, _, ok := s.identOf(obj)
			if !ok || placed[ident.Key()] {
				continue
			}
			if _, ok := want[ident.Key()]; ok {
				placed[ident.Key()] = true
				appendTarget(obj)
			}
		}
		for _, k := range sortedKeys(want) {
			if placed[k] {
				continue
			}
			if te, ok := s.identity[identityKey{class: rel.FieldSchema.ModelType, ident: k}]; ok {
				appendTarget(te.obj)
			}
		}
		field.Set(out)
	}
}
