package ledger

import (
	"reflect"
	"strings"
)

// Ledger maps model classes to sets of idents. Classes are remembered in the
// order they were first added. The zero value is not usable; call New.
type Ledger struct {
	sets  map[reflect.Type]IdentSet
	order []reflect.Type
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{sets: make(map[reflect.Type]IdentSet)}
}

// Add records ident under class.
func (l *Ledger) Add(class reflect.Type, ident Ident) {
	set, ok := l.sets[class]
	if !ok {
		set = make(IdentSet)
		l.sets[class] = set
		l.order = append(l.order, class)
	}
	set.Add(ident)
}

// AddKey records a full identity key.
func (l *Ledger) AddKey(k Key) { l.Add(k.Class, k.Ident) }

// Remove drops ident from class and reports whether it was present.
func (l *Ledger) Remove(class reflect.Type, ident Ident) bool {
	set, ok := l.sets[class]
	if !ok || !set.Remove(ident) {
		return false
	}
	if set.Len() == 0 {
		l.dropClass(class)
	}
	return true
}

// RemoveKey drops a full identity key.
func (l *Ledger) RemoveKey(k Key) bool { return l.Remove(k.Class, k.Ident) }

// Has reports whether ident is recorded under class.
func (l *Ledger) Has(class reflect.Type, ident Ident) bool {
	return l.sets[class].Has(ident)
}

// HasKey reports whether the full identity key is recorded.
func (l *Ledger) HasKey(k Key) bool { return l.Has(k.Class, k.Ident) }

// Idents returns a copy of the set recorded for class; never nil.
func (l *Ledger) Idents(class reflect.Type) IdentSet {
	if set, ok := l.sets[class]; ok {
		return set.Clone()
	}
	return IdentSet{}
}

// Classes returns the classes holding at least one ident, in first-added order.
func (l *Ledger) Classes() []reflect.Type {
	out := make([]reflect.Type, len(l.order))
	copy(out, l.order)
	return out
}

// Keys returns every recorded key, classes in first-added order and idents
// ascending within a class.
func (l *Ledger) Keys() []Key {
	var out []Key
	for _, class := range l.order {
		for _, ident := range l.sets[class].Sorted() {
			out = append(out, Key{Class: class, Ident: ident})
		}
	}
	return out
}

// Len returns the total number of recorded idents across classes.
func (l *Ledger) Len() int {
	n := 0
	for _, set := range l.sets {
		n += set.Len()
	}
	return n
}

// Empty reports whether nothing is recorded.
func (l *Ledger) Empty() bool { return len(l.order) == 0 }

// Merge adds every key of other into l.
func (l *Ledger) Merge(other *Ledger) {
	for _, k := range other.Keys() {
		l.AddKey(k)
	}
}

// Subtract removes every key of other from l.
func (l *Ledger) Subtract(other *Ledger) {
	for _, k := range other.Keys() {
		l.RemoveKey(k)
	}
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	cp := New()
	cp.Merge(l)
	return cp
}

// Clear forgets everything.
func (l *Ledger) Clear() {
	l.sets = make(map[reflect.Type]IdentSet)
	l.order = nil
}

// Equal reports whether both ledgers record the same keys.
func (l *Ledger) Equal(other *Ledger) bool {
	if len(l.sets) != len(other.sets) {
		return false
	}
	for class, set := range l.sets {
		if !set.Equal(other.sets[class]) {
			return false
		}
	}
	return true
}

// String renders the ledger as "{User: (1), (2); Role: (1)}".
func (l *Ledger) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for n, class := range l.order {
		if n > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ClassName(class))
		b.WriteString(": ")
		for i, ident := range l.sets[class].Sorted() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ident.String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

func (l *Ledger) dropClass(class reflect.Type) {
	delete(l.sets, class)
	for i, c := range l.order {
		if c == class {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}
