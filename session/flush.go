package session

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/kbukum/dbfixture/logger"
)

// Flush writes pending inserts, updates and deletes. Outside a transaction
// it begins one; in autocommit mode that transaction is committed before
// Flush returns. A failed flush rolls back every open transaction level.
func (s *Session) Flush() error {
	if s.flushing {
		return nil
	}
	if err := s.cascadeAll(); err != nil {
		return err
	}
	if !s.hasChanges() {
		return nil
	}

	own := false
	if s.txn == nil {
		if err := s.beginOuter(); err != nil {
			return err
		}
		own = s.autocommit
	}

	ctx, span := s.startSpan("session.flush")
	s.flushing = true
	fc, err := s.flush(ctx)
	s.flushing = false
	if err != nil {
		endSpan(span, err)
		s.log.Debug("Flush failed, rolling back", logger.ErrorFields("flush", err))
		if rbErr := s.rollbackAll(); rbErr != nil {
			s.log.Error("Rollback after failed flush failed", logger.ErrorFields("rollback", rbErr))
		}
		return fmt.Errorf("session flush: %w", err)
	}
	span.SetAttributes(
		attribute.Int("session.new", len(fc.New)),
		attribute.Int("session.dirty", len(fc.Dirty)),
		attribute.Int("session.deleted", len(fc.Deleted)),
	)
	endSpan(span, nil)
	s.log.Debug("Flushed", logger.Fields(
		"new", len(fc.New), "dirty", len(fc.Dirty), "deleted", len(fc.Deleted),
		logger.FieldDepth, s.depth(),
	))

	s.events.afterFlush(s, fc)

	if own {
		return s.Commit()
	}
	return nil
}

// cascadeAll picks up entities attached to held ones since they were added.
func (s *Session) cascadeAll() error {
	seen := make(map[any]bool)
	for _, e := range append([]*entry(nil), s.order...) {
		if e.deleted || e.state == stateDetached {
			continue
		}
		if err := s.add(e.obj, seen); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) hasChanges() bool {
	if len(s.pending) > 0 || len(s.deleting) > 0 {
		return true
	}
	for _, e := range s.order {
		if e.state == statePersistent && !e.deleted && s.isDirty(e) {
			return true
		}
	}
	return false
}

type linkUpdate struct {
	e     *entry
	rel   string
	links linkSet
}

func (s *Session) flush(ctx context.Context) (*FlushContext, error) {
	tx := s.txn.tx.WithContext(ctx)
	inserts := s.dependencyOrder(s.pending)
	deletes := s.deleteOrder(s.deleting)
	fc := &FlushContext{New: objects(inserts), Deleted: objects(deletes)}

	for _, e := range inserts {
		s.pullForeignKeys(e)
		if err := tx.Omit(clause.Associations).Create(e.obj).Error; err != nil {
			return nil, fmt.Errorf("insert %s: %w", e.sch.Name, err)
		}
		s.pushForeignKeys(e)
	}

	var persistent []*entry
	for _, e := range s.order {
		if e.state == statePersistent && !e.deleted {
			s.pullForeignKeys(e)
			s.pushForeignKeys(e)
			persistent = append(persistent, e)
		}
	}

	var dirty []*entry
	for _, e := range persistent {
		if !s.isDirty(e) {
			continue
		}
		dirty = append(dirty, e)
		fc.Dirty = append(fc.Dirty, e.obj)
		if cols := s.columnChanges(e); len(cols) > 0 {
			if err := tx.Model(e.obj).Omit(clause.Associations).Updates(cols).Error; err != nil {
				return nil, fmt.Errorf("update %s: %w", e.sch.Name, err)
			}
		}
	}

	written := make(map[string]bool)
	var links []linkUpdate
	for _, e := range append(inserts, persistent...) {
		updates, err := s.writeLinks(tx, e, written)
		if err != nil {
			return nil, err
		}
		links = append(links, updates...)
	}

	for _, e := range deletes {
		if err := s.deleteLinks(tx, e); err != nil {
			return nil, err
		}
		if err := tx.Delete(e.obj).Error; err != nil {
			return nil, fmt.Errorf("delete %s: %w", e.sch.Name, err)
		}
	}

	// every statement succeeded: settle the session state
	for _, e := range inserts {
		s.persist(e)
		s.txn.inserted = append(s.txn.inserted, e)
	}
	for _, e := range dirty {
		s.txn.remember(e)
		e.snapshot = s.columnValues(e)
	}
	for _, u := range links {
		s.txn.remember(u.e)
		u.e.links[u.rel] = u.links
	}
	for _, e := range deletes {
		s.forget(e)
		s.txn.removed = append(s.txn.removed, e)
	}
	s.pending = nil
	s.deleting = nil

	return fc, nil
}

// pullForeignKeys copies belongs-to targets' keys into e.
func (s *Session) pullForeignKeys(e *entry) {
	for _, rel := range relations(e.sch) {
		if rel.Type != schema.BelongsTo {
			continue
		}
		targets := s.related(rel, e.rv)
		if len(targets) == 0 {
			continue
		}
		trv, err := structValue(targets[0])
		if err != nil {
			continue
		}
		for _, ref := range rel.References {
			if ref.PrimaryKey == nil || ref.OwnPrimaryKey {
				continue
			}
			if v, zero := ref.PrimaryKey.ValueOf(s.ctx, trv); !zero {
				s.setIfChanged(ref.ForeignKey, e, v)
			}
		}
	}
}

// pushForeignKeys copies e's key into its has-one and has-many children.
func (s *Session) pushForeignKeys(e *entry) {
	for _, rel := range relations(e.sch) {
		if rel.Type != schema.HasOne && rel.Type != schema.HasMany {
			continue
		}
		for _, child := range s.related(rel, e.rv) {
			ce, ok := s.entries[child]
			if !ok {
				continue
			}
			for _, ref := range rel.References {
				switch {
				case ref.OwnPrimaryKey:
					if v, zero := ref.PrimaryKey.ValueOf(s.ctx, e.rv); !zero {
						s.setIfChanged(ref.ForeignKey, ce, v)
					}
				case ref.PrimaryValue != "":
					s.setIfChanged(ref.ForeignKey, ce, ref.PrimaryValue)
				}
			}
		}
	}
}

func (s *Session) setIfChanged(f *schema.Field, e *entry, v any) {
	cur, _ := f.ValueOf(s.ctx, e.rv)
	if fmt.Sprint(normalize(cur)) == fmt.Sprint(normalize(v)) {
		return
	}
	_ = f.Set(s.ctx, e.rv, v)
}

// writeLinks inserts and deletes join rows so the join tables match e's
// many-to-many fields. The new link state is returned, not applied.
func (s *Session) writeLinks(tx *gorm.DB, e *entry, written map[string]bool) ([]linkUpdate, error) {
	var updates []linkUpdate
	for _, rel := range relations(e.sch) {
		if rel.Type != schema.Many2Many || rel.JoinTable == nil {
			continue
		}
		current, _ := s.linkTargets(e, rel)
		previous := e.links[rel.Name]
		if sameLinks(current, previous) {
			continue
		}
		owner := s.ownerColumns(e, rel)

		for _, k := range sortedKeys(current) {
			if _, ok := previous[k]; ok {
				continue
			}
			row := joinRow(owner, current[k])
			id := rel.JoinTable.Table + "|" + rowKey(row)
			if written[id] {
				continue
			}
			written[id] = true
			if err := tx.Table(rel.JoinTable.Table).Create(row).Error; err != nil {
				return nil, fmt.Errorf("link %s: %w", rel.JoinTable.Table, err)
			}
		}
		for _, k := range sortedKeys(previous) {
			if _, ok := current[k]; ok {
				continue
			}
			if err := deleteRows(tx, rel.JoinTable.Table, joinRow(owner, previous[k])); err != nil {
				return nil, fmt.Errorf("unlink %s: %w", rel.JoinTable.Table, err)
			}
		}
		updates = append(updates, linkUpdate{e: e, rel: rel.Name, links: current})
	}
	return updates, nil
}

// deleteLinks removes the join rows owned by an entity about to be deleted.
func (s *Session) deleteLinks(tx *gorm.DB, e *entry) error {
	for _, rel := range relations(e.sch) {
		if rel.Type != schema.Many2Many || rel.JoinTable == nil {
			continue
		}
		if err := deleteRows(tx, rel.JoinTable.Table, s.ownerColumns(e, rel)); err != nil {
			return fmt.Errorf("unlink %s: %w", rel.JoinTable.Table, err)
		}
	}
	return nil
}

func (s *Session) ownerColumns(e *entry, rel *schema.Relationship) map[string]any {
	cols := make(map[string]any)
	for _, ref := range rel.References {
		switch {
		case ref.OwnPrimaryKey:
			v, _ := ref.PrimaryKey.ValueOf(s.ctx, e.rv)
			cols[ref.ForeignKey.DBName] = normalize(v)
		case ref.PrimaryValue != "":
			cols[ref.ForeignKey.DBName] = ref.PrimaryValue
		}
	}
	return cols
}

func deleteRows(tx *gorm.DB, table string, where map[string]any) error {
	exprs := make([]clause.Expression, 0, len(where))
	for _, col := range sortedKeys(where) {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: col}, Value: where[col]})
	}
	if len(exprs) == 0 {
		return nil
	}
	return tx.Exec("DELETE FROM ? WHERE ?", clause.Table{Name: table}, clause.And(exprs...)).Error
}

func joinRow(a, b map[string]any) map[string]any {
	row := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		row[k] = v
	}
	for k, v := range b {
		row[k] = v
	}
	return row
}

func rowKey(row map[string]any) string {
	parts := make([]string, 0, len(row))
	for _, k := range sortedKeys(row) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deleteOrder puts dependents before the entities they reference. Entries
// with no dependency between them keep the order they were marked in.
func (s *Session) deleteOrder(entries []*entry) []*entry {
	rev := slices.Clone(entries)
	slices.Reverse(rev)
	out := s.dependencyOrder(rev)
	slices.Reverse(out)
	return out
}

// dependencyOrder sorts entries so that every entity comes after the
// entities it references: belongs-to targets and has-one/has-many owners.
// Ties keep the input order; entries caught in a cycle keep it too.
func (s *Session) dependencyOrder(entries []*entry) []*entry {
	index := make(map[*entry]int, len(entries))
	for i, e := range entries {
		index[e] = i
	}
	after := make([][]int, len(entries))
	indegree := make([]int, len(entries))
	edge := func(from, to int) {
		if from == to {
			return
		}
		after[from] = append(after[from], to)
		indegree[to]++
	}

	for i, e := range entries {
		for _, rel := range relations(e.sch) {
			for _, obj := range s.related(rel, e.rv) {
				j, ok := index[s.entries[obj]]
				if !ok {
					continue
				}
				switch rel.Type {
				case schema.BelongsTo:
					edge(j, i)
				case schema.HasOne, schema.HasMany:
					edge(i, j)
				}
			}
		}
	}

	out := make([]*entry, 0, len(entries))
	done := make([]bool, len(entries))
	for len(out) < len(entries) {
		progressed := false
		for i := range entries {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			out = append(out, entries[i])
			for _, j := range after[i] {
				indegree[j]--
			}
			break
		}
		if !progressed {
			for i := range entries {
				if !done[i] {
					done[i] = true
					out = append(out, entries[i])
				}
			}
		}
	}
	return out
}
