package session

import (
	"reflect"
	"slices"

	"gorm.io/gorm/schema"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/ledger"
)

// schemaOf parses the GORM schema of a model value or class.
func (s *Session) schemaOf(model any) (*schema.Schema, error) {
	if t, ok := model.(reflect.Type); ok {
		model = reflect.New(ledger.ClassOf(t)).Interface()
	}
	sch, err := schema.Parse(model, &s.schemas, s.db.NamingStrategy)
	if err != nil {
		return nil, apperrors.InvalidInput("model", err.Error()).WithCause(err)
	}
	return sch, nil
}

// relations returns the associations declared on sch's own struct, in
// field order. GORM also files back-references from other schemas under
// sch (User.Roles shows up in Role's map); those belong to their owner.
func relations(sch *schema.Schema) []*schema.Relationship {
	rels := make([]*schema.Relationship, 0, len(sch.Relationships.Relations))
	for _, rel := range sch.Relationships.Relations {
		if rel.Schema != sch {
			continue
		}
		rels = append(rels, rel)
	}
	slices.SortFunc(rels, func(a, b *schema.Relationship) int {
		return slices.Compare(a.Field.StructField.Index, b.Field.StructField.Index)
	})
	return rels
}

// related returns pointers to the entities held by an association field.
func (s *Session) related(rel *schema.Relationship, rv reflect.Value) []any {
	return entitiesIn(rel.Field.ReflectValueOf(s.ctx, rv))
}

func entitiesIn(v reflect.Value) []any {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Elem().Kind() == reflect.Struct {
			return []any{v.Interface()}
		}
		return entitiesIn(v.Elem())
	case reflect.Struct:
		if v.CanAddr() {
			return []any{v.Addr().Interface()}
		}
	case reflect.Slice, reflect.Array:
		var out []any
		for i := 0; i < v.Len(); i++ {
			out = append(out, entitiesIn(v.Index(i))...)
		}
		return out
	case reflect.Interface:
		if !v.IsNil() {
			return entitiesIn(v.Elem())
		}
	}
	return nil
}

// primaryIdent reads the primary key tuple; ok is false if any column is zero.
func (s *Session) primaryIdent(sch *schema.Schema, rv reflect.Value) (ledger.Ident, bool) {
	if len(sch.PrimaryFields) == 0 {
		return ledger.Ident{}, false
	}
	values := make([]any, len(sch.PrimaryFields))
	for i, f := range sch.PrimaryFields {
		v, zero := f.ValueOf(s.ctx, rv)
		if zero {
			return ledger.Ident{}, false
		}
		values[i] = normalize(v)
	}
	return ledger.NewIdent(values...), true
}

// identOf resolves the primary key of any entity, held or not.
func (s *Session) identOf(obj any) (ledger.Ident, *schema.Schema, bool) {
	if e, ok := s.entries[obj]; ok && e.state == statePersistent {
		return e.key.Ident, e.sch, true
	}
	rv, err := structValue(obj)
	if err != nil {
		return ledger.Ident{}, nil, false
	}
	sch, err := s.schemaOf(obj)
	if err != nil {
		return ledger.Ident{}, nil, false
	}
	ident, ok := s.primaryIdent(sch, rv)
	return ident, sch, ok
}

// columnValues snapshots every non-key column of e.
func (s *Session) columnValues(e *entry) map[string]any {
	values := make(map[string]any, len(e.sch.Fields))
	for _, f := range e.sch.Fields {
		if f.DBName == "" || f.PrimaryKey || !f.Readable {
			continue
		}
		v, _ := f.ValueOf(s.ctx, e.rv)
		values[f.DBName] = normalize(v)
	}
	return values
}

// columnChanges returns updatable columns whose value differs from the snapshot.
func (s *Session) columnChanges(e *entry) map[string]any {
	var changes map[string]any
	for name, v := range s.columnValues(e) {
		if reflect.DeepEqual(v, e.snapshot[name]) {
			continue
		}
		if f := e.sch.LookUpField(name); f == nil || !f.Updatable {
			continue
		}
		if changes == nil {
			changes = make(map[string]any)
		}
		changes[name] = v
	}
	return changes
}

// restoreFields writes the snapshot back into the entity.
func (s *Session) restoreFields(e *entry) {
	for name, v := range e.snapshot {
		if f := e.sch.LookUpField(name); f != nil {
			_ = f.Set(s.ctx, e.rv, v)
		}
	}
}

func (s *Session) isDirty(e *entry) bool {
	if len(s.columnChanges(e)) > 0 {
		return true
	}
	for _, rel := range relations(e.sch) {
		if rel.Type != schema.Many2Many {
			continue
		}
		current, complete := s.linkTargets(e, rel)
		if !complete || !sameLinks(current, e.links[rel.Name]) {
			return true
		}
	}
	return false
}

// linkTargets collects the many-to-many targets of e keyed by ident.
// complete is false if some target has no primary key yet.
func (s *Session) linkTargets(e *entry, rel *schema.Relationship) (linkSet, bool) {
	set := make(linkSet)
	complete := true
	for _, target := range s.related(rel, e.rv) {
		ident, _, ok := s.identOf(target)
		if !ok {
			complete = false
			continue
		}
		trv, _ := structValue(target)
		cols := make(map[string]any)
		for _, ref := range rel.References {
			if ref.OwnPrimaryKey || ref.PrimaryValue != "" {
				continue
			}
			v, _ := ref.PrimaryKey.ValueOf(s.ctx, trv)
			cols[ref.ForeignKey.DBName] = normalize(v)
		}
		set[ident.Key()] = cols
	}
	return set, complete
}

func sameLinks(a, b linkSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// normalize dereferences pointers so snapshots compare by value.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}
