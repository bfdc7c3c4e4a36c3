package ledger

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const keySep = "\x1f"

// Ident is an ordered primary-key tuple.
type Ident struct {
	values []any
	key    string
}

// NewIdent builds an ident from primary-key values in column order.
func NewIdent(values ...any) Ident {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	cp := make([]any, len(values))
	copy(cp, values)
	return Ident{values: cp, key: strings.Join(parts, keySep)}
}

// IdentFrom accepts what callers pass as "ident" arguments: a single Ident,
// or the primary-key values themselves. Pointer values are dereferenced.
func IdentFrom(args ...any) Ident {
	if len(args) == 1 {
		switch v := args[0].(type) {
		case Ident:
			return v
		case *Ident:
			if v != nil {
				return *v
			}
			return Ident{}
		}
	}
	values := make([]any, len(args))
	for i, v := range args {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && !rv.IsNil() {
			v = rv.Elem().Interface()
		}
		values[i] = v
	}
	return NewIdent(values...)
}

// Values returns a copy of the primary-key values.
func (i Ident) Values() []any {
	cp := make([]any, len(i.values))
	copy(cp, i.values)
	return cp
}

// Len returns the number of primary-key columns.
func (i Ident) Len() int { return len(i.values) }

// IsZero reports whether the ident holds no values.
func (i Ident) IsZero() bool { return len(i.values) == 0 }

// Equal reports whether both idents hold the same printed values.
func (i Ident) Equal(o Ident) bool { return i.key == o.key && len(i.values) == len(o.values) }

// Key returns the canonical string used for set membership.
func (i Ident) Key() string { return i.key }

// String renders the tuple as "(1)" or "(1, en)".
func (i Ident) String() string {
	return "(" + strings.ReplaceAll(i.key, keySep, ", ") + ")"
}

// less orders idents column by column, numerically where both sides are integers.
func (i Ident) less(o Ident) bool {
	a, b := strings.Split(i.key, keySep), strings.Split(o.key, keySep)
	for n := 0; n < len(a) && n < len(b); n++ {
		if a[n] == b[n] {
			continue
		}
		ai, aerr := strconv.ParseInt(a[n], 10, 64)
		bi, berr := strconv.ParseInt(b[n], 10, 64)
		if aerr == nil && berr == nil {
			return ai < bi
		}
		return a[n] < b[n]
	}
	return len(a) < len(b)
}

// ClassOf returns the model class of v: the struct type behind any number of
// pointers or slices. A reflect.Type is accepted as-is (after the same unwrapping).
func ClassOf(v any) reflect.Type {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	for t != nil && (t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	return t
}

// ClassName returns a short printable name for a class.
func ClassName(class reflect.Type) string {
	if class == nil {
		return "<nil>"
	}
	if class.Name() != "" {
		return class.Name()
	}
	return class.String()
}

// Key is a full identity key: model class plus primary-key tuple.
type Key struct {
	Class reflect.Type
	Ident Ident
}

// String renders the key as "User(1)".
func (k Key) String() string {
	return ClassName(k.Class) + k.Ident.String()
}
