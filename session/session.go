package session

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	apperrors "github.com/kbukum/dbfixture/errors"
	"github.com/kbukum/dbfixture/ledger"
	"github.com/kbukum/dbfixture/logger"
)

type state int

const (
	statePending state = iota
	statePersistent
	stateDetached
)

// entry is the session's record of one entity.
type entry struct {
	obj      any
	rv       reflect.Value
	sch      *schema.Schema
	class    reflect.Type
	state    state
	key      ledger.Key
	snapshot map[string]any
	links    map[string]linkSet

	// transaction depth at which the entity was added or marked for deletion
	depth       int
	deleted     bool
	deleteDepth int
}

// linkSet maps a target ident key to the target-side join columns.
type linkSet map[string]map[string]any

type identityKey struct {
	class reflect.Type
	ident string
}

func keyOf(k ledger.Key) identityKey { return identityKey{class: k.Class, ident: k.Ident.Key()} }

// Session is a unit of work over a *gorm.DB.
type Session struct {
	db         *gorm.DB
	ctx        context.Context
	log        *logger.Logger
	tracer     trace.Tracer
	autocommit bool
	autoflush  bool
	schemas    sync.Map

	entries    map[any]*entry
	identity   map[identityKey]*entry
	order      []*entry
	pending    []*entry
	deleting   []*entry
	txn        *Transaction
	savepoints int
	flushing   bool
	events     hub
}

// Option configures a Session.
type Option func(*Session)

// WithAutocommit disables implicit transactions.
func WithAutocommit() Option {
	return func(s *Session) { s.autocommit = true }
}

// WithAutoflush sets the initial autoflush mode (default on).
func WithAutoflush(on bool) Option {
	return func(s *Session) { s.autoflush = on }
}

// WithLogger sets the session logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Session) { s.log = log.WithComponent("session") }
}

// WithTracer sets the tracer used for flush, commit and rollback spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// WithTracerName uses the named tracer from the global provider.
func WithTracerName(name string) Option {
	return func(s *Session) { s.tracer = otel.Tracer(name) }
}

// WithContext sets the context every statement runs under.
func WithContext(ctx context.Context) Option {
	return func(s *Session) { s.ctx = ctx }
}

// New creates a session over db.
func New(db *gorm.DB, opts ...Option) *Session {
	s := &Session{
		db:        db,
		ctx:       context.Background(),
		log:       logger.WithComponent("session"),
		tracer:    otel.Tracer(defaultTracerName),
		autoflush: true,
		entries:   make(map[any]*entry),
		identity:  make(map[identityKey]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *gorm.DB.
func (s *Session) DB() *gorm.DB { return s.db }

// Autoflush reports whether reads flush pending changes first.
func (s *Session) Autoflush() bool { return s.autoflush }

// SetAutoflush toggles autoflush.
func (s *Session) SetAutoflush(on bool) { s.autoflush = on }

// Autocommit reports whether the session runs without implicit transactions.
func (s *Session) Autocommit() bool { return s.autocommit }

// Add places obj in the session. Entities reachable through obj's
// association fields are added too.
//
// Add panics with an invalid-input *errors.AppError unless obj is a non-nil
// pointer to a struct GORM can parse. Passing a bad value is a programming
// error in the fixture, unlike Delete and Get whose failures depend on
// session state.
func (s *Session) Add(obj any) {
	if err := s.add(obj, make(map[any]bool)); err != nil {
		panic(err)
	}
}

// AddAll adds every object in order.
func (s *Session) AddAll(objs ...any) {
	for _, obj := range objs {
		s.Add(obj)
	}
}

func (s *Session) add(obj any, seen map[any]bool) error {
	if seen[obj] {
		return nil
	}
	seen[obj] = true

	e, ok := s.entries[obj]
	if !ok {
		var err error
		if e, err = s.newEntry(obj); err != nil {
			return err
		}
		e.state = statePending
		e.depth = s.depth()
		s.track(e)
		s.pending = append(s.pending, e)
	}
	if e.deleted {
		return nil
	}
	for _, rel := range relations(e.sch) {
		for _, child := range s.related(rel, e.rv) {
			if err := s.add(child, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete marks a persistent entity for deletion at the next flush.
func (s *Session) Delete(obj any) error {
	e, ok := s.entries[obj]
	if !ok || e.state != statePersistent {
		return apperrors.NotPersistent(ledger.ClassName(ledger.ClassOf(obj)))
	}
	if e.deleted {
		return nil
	}
	e.deleted = true
	e.deleteDepth = s.depth()
	s.deleting = append(s.deleting, e)
	return nil
}

// Expunge removes obj from the session without touching the database.
func (s *Session) Expunge(obj any) {
	if e, ok := s.entries[obj]; ok {
		s.forget(e)
	}
}

// ExpungeAll empties the session.
func (s *Session) ExpungeAll() {
	for _, e := range s.order {
		e.state = stateDetached
		e.deleted = false
	}
	s.entries = make(map[any]*entry)
	s.identity = make(map[identityKey]*entry)
	s.order = nil
	s.pending = nil
	s.deleting = nil
}

// Contains reports whether obj is held by the session.
func (s *Session) Contains(obj any) bool {
	_, ok := s.entries[obj]
	return ok
}

// New returns the pending entities in the order they were added.
func (s *Session) New() []any {
	return objects(s.pending)
}

// Dirty returns persistent entities whose columns or many-to-many links
// differ from what was last flushed or loaded.
func (s *Session) Dirty() []any {
	var out []any
	for _, e := range s.order {
		if e.state == statePersistent && !e.deleted && s.isDirty(e) {
			out = append(out, e.obj)
		}
	}
	return out
}

// Deleted returns the entities marked for deletion.
func (s *Session) Deleted() []any {
	return objects(s.deleting)
}

// IdentityKey returns obj's identity key. ok is false while obj's primary
// key is unset.
func (s *Session) IdentityKey(obj any) (key ledger.Key, ok bool, err error) {
	if e, found := s.entries[obj]; found && e.state == statePersistent {
		return e.key, true, nil
	}
	rv, err := structValue(obj)
	if err != nil {
		return ledger.Key{}, false, err
	}
	sch, err := s.schemaOf(obj)
	if err != nil {
		return ledger.Key{}, false, err
	}
	ident, ok := s.primaryIdent(sch, rv)
	if !ok {
		return ledger.Key{}, false, nil
	}
	return ledger.Key{Class: rv.Type(), Ident: ident}, true, nil
}

// Close rolls back every open transaction level and empties the session.
// The session can be used again afterwards.
func (s *Session) Close() error {
	err := s.rollbackAll()
	s.ExpungeAll()
	return err
}

func (s *Session) depth() int { return s.txn.Depth() }

func (s *Session) newEntry(obj any) (*entry, error) {
	rv, err := structValue(obj)
	if err != nil {
		return nil, err
	}
	sch, err := s.schemaOf(obj)
	if err != nil {
		return nil, err
	}
	return &entry{obj: obj, rv: rv, sch: sch, class: rv.Type()}, nil
}

// track adds e to the object index.
func (s *Session) track(e *entry) {
	s.entries[e.obj] = e
	s.order = append(s.order, e)
}

// persist makes e a persistent entity under its current primary key.
func (s *Session) persist(e *entry) {
	e.state = statePersistent
	e.deleted = false
	if ident, ok := s.primaryIdent(e.sch, e.rv); ok {
		e.key = ledger.Key{Class: e.class, Ident: ident}
		s.identity[keyOf(e.key)] = e
	}
	e.snapshot = s.columnValues(e)
	if e.links == nil {
		e.links = make(map[string]linkSet)
	}
	if _, ok := s.entries[e.obj]; !ok {
		s.track(e)
	}
	s.pending = slices.DeleteFunc(s.pending, func(p *entry) bool { return p == e })
}

func (s *Session) forget(e *entry) {
	delete(s.entries, e.obj)
	if cur, ok := s.identity[keyOf(e.key)]; ok && cur == e {
		delete(s.identity, keyOf(e.key))
	}
	drop := func(p *entry) bool { return p == e }
	s.order = slices.DeleteFunc(s.order, drop)
	s.pending = slices.DeleteFunc(s.pending, drop)
	s.deleting = slices.DeleteFunc(s.deleting, drop)
	e.state = stateDetached
	e.deleted = false
}

func objects(entries []*entry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.obj
	}
	return out
}

func structValue(obj any) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, apperrors.InvalidInput("obj", fmt.Sprintf("expected a non-nil pointer to a struct, got %T", obj))
	}
	return rv.Elem(), nil
}
