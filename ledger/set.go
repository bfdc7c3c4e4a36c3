package ledger

import "sort"

// IdentSet is a set of idents keyed by their canonical form.
type IdentSet map[string]Ident

// NewIdentSet builds a set from idents.
func NewIdentSet(idents ...Ident) IdentSet {
	s := make(IdentSet, len(idents))
	for _, i := range idents {
		s.Add(i)
	}
	return s
}

// Add inserts ident; adding an equal ident again is a no-op.
func (s IdentSet) Add(i Ident) { s[i.key] = i }

// Has reports membership.
func (s IdentSet) Has(i Ident) bool {
	_, ok := s[i.key]
	return ok
}

// Remove deletes ident and reports whether it was present.
func (s IdentSet) Remove(i Ident) bool {
	if _, ok := s[i.key]; !ok {
		return false
	}
	delete(s, i.key)
	return true
}

// Len returns the number of idents.
func (s IdentSet) Len() int { return len(s) }

// Sorted returns the idents in ascending order.
func (s IdentSet) Sorted() []Ident {
	out := make([]Ident, 0, len(s))
	for _, i := range s {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].less(out[b]) })
	return out
}

// Clone returns an independent copy.
func (s IdentSet) Clone() IdentSet {
	cp := make(IdentSet, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// Equal reports whether both sets hold the same idents.
func (s IdentSet) Equal(o IdentSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}
