package sample

import (
	"fmt"
	"slices"

	"github.com/kbukum/dbfixture/session"
)

// Factory builds the value of a node. It may return an entity pointer, a
// slice of them, or nil.
type Factory func(g *Graph) any

type node struct {
	name    string
	factory Factory
}

// Definition is an ordered, named set of fixture nodes.
type Definition struct {
	name  string
	nodes []node
}

// Define starts an empty definition.
func Define(name string) *Definition {
	return &Definition{name: name}
}

// Name returns the definition name.
func (d *Definition) Name() string { return d.name }

// Node registers a factory. Redefining a name replaces its factory and
// keeps its position.
func (d *Definition) Node(name string, f Factory) *Definition {
	if f == nil {
		panic(fmt.Sprintf("sample: node %q of %s has no factory", name, d.name))
	}
	if i := d.find(name); i >= 0 {
		d.nodes[i].factory = f
		return d
	}
	d.nodes = append(d.nodes, node{name: name, factory: f})
	return d
}

// Extend returns a copy of d under a new name. Nodes registered on the copy
// do not affect d.
func (d *Definition) Extend(name string) *Definition {
	return &Definition{name: name, nodes: slices.Clone(d.nodes)}
}

// Import registers from's node under alias. Sibling references inside the
// factory resolve against the importing graph.
func (d *Definition) Import(from *Definition, name, alias string) *Definition {
	i := from.find(name)
	if i < 0 {
		panic(fmt.Sprintf("sample: %s has no node %q", from.name, name))
	}
	return d.Node(alias, from.nodes[i].factory)
}

// Nodes returns the node names in declaration order.
func (d *Definition) Nodes() []string {
	names := make([]string, len(d.nodes))
	for i, n := range d.nodes {
		names[i] = n.name
	}
	return names
}

// Has reports whether name is a node.
func (d *Definition) Has(name string) bool { return d.find(name) >= 0 }

func (d *Definition) find(name string) int {
	return slices.IndexFunc(d.nodes, func(n node) bool { return n.name == name })
}

// New instantiates the definition against the session p resolves to.
func (d *Definition) New(p session.Provider, opts ...Option) *Graph {
	g := &Graph{
		def:      d,
		provider: p,
		log:      defaultLogger(),
		params:   make(map[string]any),
		cache:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
