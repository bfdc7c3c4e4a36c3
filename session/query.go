package session

import (
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/ledger"
)

// conn returns the connection reads run on: the open transaction, the base
// connection in autocommit mode, or a newly begun transaction.
func (s *Session) conn() (*gorm.DB, error) {
	if s.txn != nil {
		return s.txn.tx.WithContext(s.ctx), nil
	}
	if s.autocommit {
		return s.db.WithContext(s.ctx), nil
	}
	if err := s.beginOuter(); err != nil {
		return nil, err
	}
	return s.txn.tx.WithContext(s.ctx), nil
}

// beforeRead autoflushes and picks the read connection.
func (s *Session) beforeRead() (*gorm.DB, error) {
	if s.autoflush && !s.flushing {
		if err := s.Flush(); err != nil {
			return nil, err
		}
	}
	return s.conn()
}

// Get returns the entity of model's class with the given primary key, or
// nil if there is none. ident is a single ledger.Ident or the key values.
// Held entities are returned from the identity map without a query; an
// entity marked for deletion reads as missing.
func (s *Session) Get(model any, ident ...any) (any, error) {
	class := ledger.ClassOf(model)
	if class == nil || class.Kind() != reflect.Struct {
		return nil, apperrors.InvalidInput("model", fmt.Sprintf("%T is not a model", model))
	}
	id := ledger.IdentFrom(ident...)
	if id.IsZero() {
		return nil, apperrors.InvalidInput("ident", "no primary key values")
	}
	sch, err := s.schemaOf(class)
	if err != nil {
		return nil, err
	}
	if id.Len() != len(sch.PrimaryFields) {
		return nil, apperrors.InvalidInput("ident",
			fmt.Sprintf("%s has %d primary key columns, got %d values", sch.Name, len(sch.PrimaryFields), id.Len()))
	}

	key := identityKey{class: class, ident: id.Key()}
	if e, ok := s.identity[key]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.obj, nil
	}

	db, err := s.beforeRead()
	if err != nil {
		return nil, err
	}
	// the flush may have loaded or deleted it
	if e, ok := s.identity[key]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.obj, nil
	}

	values := id.Values()
	exprs := make([]clause.Expression, len(sch.PrimaryFields))
	for i, f := range sch.PrimaryFields {
		exprs[i] = clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: f.DBName}, Value: values[i]}
	}
	obj := reflect.New(class).Interface()
	if err := db.Where(clause.And(exprs...)).Take(obj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("session get %s%s: %w", sch.Name, id, err)
	}
	return s.load(obj)
}

// Find loads every row of the element class of dest, which must be a
// pointer to a slice of struct pointers. Rows already held are replaced by
// the held entities.
func (s *Session) Find(dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice ||
		rv.Elem().Type().Elem().Kind() != reflect.Pointer ||
		rv.Elem().Type().Elem().Elem().Kind() != reflect.Struct {
		return apperrors.InvalidInput("dest", fmt.Sprintf("expected a pointer to a slice of struct pointers, got %T", dest))
	}
	db, err := s.beforeRead()
	if err != nil {
		return err
	}
	if err := db.Find(dest).Error; err != nil {
		return fmt.Errorf("session find: %w", err)
	}
	rows := rv.Elem()
	kept := reflect.MakeSlice(rows.Type(), 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		obj, err := s.load(rows.Index(i).Interface())
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}
		kept = reflect.Append(kept, reflect.ValueOf(obj))
	}
	rows.Set(kept)
	return nil
}

// Count returns the number of rows of model's class.
func (s *Session) Count(model any) (int64, error) {
	class := ledger.ClassOf(model)
	if class == nil || class.Kind() != reflect.Struct {
		return 0, apperrors.InvalidInput("model", fmt.Sprintf("%T is not a model", model))
	}
	db, err := s.beforeRead()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Model(reflect.New(class).Interface()).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("session count: %w", err)
	}
	return n, nil
}

// load registers a freshly read row, or returns the entity already held
// under its key. Entities marked for deletion read as nil.
func (s *Session) load(obj any) (any, error) {
	e, err := s.newEntry(obj)
	if err != nil {
		return nil, err
	}
	ident, ok := s.primaryIdent(e.sch, e.rv)
	if !ok {
		return obj, nil
	}
	if held, ok := s.identity[identityKey{class: e.class, ident: ident.Key()}]; ok {
		if held.deleted {
			return nil, nil
		}
		return held.obj, nil
	}
	e.depth = s.depth()
	s.persist(e)
	return obj, nil
}
