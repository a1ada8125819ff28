package metadata

import (
	"fmt"
	"reflect"
	"strings"
)

// FieldKind is the semantic category of a persisted field. It decides which
// filter operators a field accepts and how backends store it.
type FieldKind int

const (
	KindOther FieldKind = iota
	KindBoolean
	KindString
	KindNumber
	KindDate
	KindDateTime
	KindTime
	KindEnum
	KindEntityRef
	KindArray
	KindCollection
	KindMap
)

var kindNames = [...]string{
	KindOther:      "other",
	KindBoolean:    "boolean",
	KindString:     "string",
	KindNumber:     "number",
	KindDate:       "date",
	KindDateTime:   "datetime",
	KindTime:       "time",
	KindEnum:       "enum",
	KindEntityRef:  "entityRef",
	KindArray:      "array",
	KindCollection: "collection",
	KindMap:        "map",
}

func (k FieldKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseFieldKind maps a descriptor kind name to its FieldKind. Matching is
// case-insensitive so "entityref" and "entityRef" are equivalent.
func ParseFieldKind(s string) (FieldKind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			return FieldKind(i), nil
		}
	}
	return KindOther, fmt.Errorf("unknown field kind %q", s)
}

// Path is a typed, resolvable handle on one persisted field of an entity
// type. Get and Set are the only way the rest of the system reads or writes
// a field by name.
type Path struct {
	Name   string
	Kind   FieldKind
	Column string
	Target string   // referenced entity type, KindEntityRef only
	Values []string // allowed literals, KindEnum only

	Get func(entity any) any
	Set func(entity any, value any) error
}

func (p *Path) String() string {
	return p.Name + ":" + p.Kind.String()
}

// Field builds a Path over a concrete struct type T using explicit accessor
// and mutator closures. Assigning nil stores the zero value of V.
func Field[T any, V any](name string, kind FieldKind, get func(*T) V, set func(*T, V)) *Path {
	return &Path{
		Name:   name,
		Kind:   kind,
		Column: name,
		Get: func(entity any) any {
			t, ok := entity.(*T)
			if !ok || t == nil {
				return nil
			}
			return get(t)
		},
		Set: func(entity any, value any) error {
			t, ok := entity.(*T)
			if !ok || t == nil {
				return fmt.Errorf("field %s: cannot set on %T", name, entity)
			}
			if value == nil {
				var zero V
				set(t, zero)
				return nil
			}
			v, ok := value.(V)
			if !ok {
				if v, ok = convert[V](value); !ok {
					return fmt.Errorf("field %s: cannot assign %T", name, value)
				}
			}
			set(t, v)
			return nil
		},
	}
}

// convert handles the lossless-enough conversions backends need: between
// numeric types and between string types.
func convert[V any](value any) (V, bool) {
	var zero V
	target := reflect.TypeOf(&zero).Elem()
	rv := reflect.ValueOf(value)
	switch {
	case isNumeric(rv.Kind()) && isNumeric(target.Kind()):
	case rv.Kind() == reflect.String && target.Kind() == reflect.String:
	default:
		return zero, false
	}
	return rv.Convert(target).Interface().(V), true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// RecordField builds a Path that reads and writes a named slot of a *Record.
func RecordField(name string, kind FieldKind) *Path {
	return &Path{
		Name:   name,
		Kind:   kind,
		Column: name,
		Get: func(entity any) any {
			r, ok := entity.(*Record)
			if !ok || r == nil {
				return nil
			}
			return r.Get(name)
		},
		Set: func(entity any, value any) error {
			r, ok := entity.(*Record)
			if !ok || r == nil {
				return fmt.Errorf("field %s: cannot set on %T", name, entity)
			}
			r.Set(name, value)
			return nil
		},
	}
}
