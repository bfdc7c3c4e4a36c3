package sample

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/session"
)

// Graph is one instantiation of a Definition.
type Graph struct {
	def      *Definition
	provider session.Provider
	log      *logger.Logger
	params   map[string]any

	cache    map[string]any
	used     []string
	building []string
}

// Option configures a Graph.
type Option func(*Graph)

// WithParam makes a value available to factories through Param.
func WithParam(key string, value any) Option {
	return func(g *Graph) { g.params[key] = value }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(g *Graph) { g.log = log.WithComponent("sample") }
}

func defaultLogger() *logger.Logger { return logger.WithComponent("sample") }

// CycleError is the panic value of a node that depends on itself.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "sample: dependency cycle " + strings.Join(e.Path, " -> ")
}

// Param returns a value set with WithParam, or nil.
func (g *Graph) Param(key string) any { return g.params[key] }

// Definition returns the definition g was built from.
func (g *Graph) Definition() *Definition { return g.def }

// Session returns the session nodes are added to.
func (g *Graph) Session() *session.Session {
	s, err := session.Resolve(g.provider)
	if err != nil {
		panic(err)
	}
	return s
}

// Get returns the value of a node, building it on first access. It panics
// on an unknown name or a dependency cycle.
func (g *Graph) Get(name string) any {
	if v, ok := g.cache[name]; ok {
		return v
	}
	i := g.def.find(name)
	if i < 0 {
		panic(fmt.Sprintf("sample: %s has no node %q", g.def.name, name))
	}
	if slices.Contains(g.building, name) {
		start := slices.Index(g.building, name)
		panic(&CycleError{Path: append(slices.Clone(g.building[start:]), name)})
	}

	v := g.build(name, g.def.nodes[i].factory)
	s := g.Session()
	for _, obj := range entities(v) {
		s.Add(obj)
	}
	g.cache[name] = v
	g.used = append(g.used, name)
	g.log.Debug("Fixture node built", logger.Fields("node", name, logger.FieldModel, fmt.Sprintf("%T", v)))
	return v
}

func (g *Graph) build(name string, f Factory) any {
	g.building = append(g.building, name)
	defer func() { g.building = g.building[:len(g.building)-1] }()
	return f(g)
}

// Built reports whether a node has been built.
func (g *Graph) Built(name string) bool {
	_, ok := g.cache[name]
	return ok
}

// Used returns the built nodes in the order they were built.
func (g *Graph) Used() []string { return slices.Clone(g.used) }

// CreateAll builds every node in declaration order and commits once. An
// autocommit session gets an explicit transaction first.
func (g *Graph) CreateAll() error {
	s := g.Session()
	if s.Autocommit() && !s.InTransaction() {
		if err := s.Begin(); err != nil {
			return err
		}
	}
	for _, name := range g.def.Nodes() {
		g.Get(name)
	}
	return s.Commit()
}

// Ref returns a node's value as T, panicking if it is something else.
func Ref[T any](g *Graph, name string) T {
	v := g.Get(name)
	if v == nil {
		var zero T
		return zero
	}
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("sample: node %q is %T, not %s", name, v, reflect.TypeFor[T]()))
	}
	return t
}

// entities flattens a node value into the entities to add.
func entities(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, entities(rv.Index(i).Interface())...)
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
	}
	return []any{v}
}
