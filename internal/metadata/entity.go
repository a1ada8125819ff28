package metadata

import (
	"fmt"
	"reflect"
	"sort"
)

// Typed is implemented by every persisted entity so that the owning access
// handle can be found from an instance alone.
type Typed interface {
	EntityType() string
}

// Identifiable is implemented by entities that can report their identity.
// Entity references are compared and stored by this value.
type Identifiable interface {
	EntityID() any
}

// RefID returns the identity of a referenced entity, or v itself when v is
// already a plain id. A nil entity pointer yields nil.
func RefID(v any) any {
	e, ok := v.(Identifiable)
	if !ok {
		return v
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return e.EntityID()
}

type IDStrategy string

const (
	IDSequence IDStrategy = "sequence"
	IDUUID     IDStrategy = "uuid"
	IDULID     IDStrategy = "ulid"
)

type Storage string

const (
	StorageSQL    Storage = "sql"
	StorageRedis  Storage = "redis"
	StorageMemory Storage = "memory"
)

// DynamicAttribute declares a computed attribute whose assignment runs an
// expression instead of a plain field write.
type DynamicAttribute struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
}

// Descriptor is the field-path descriptor of one entity type. It is
// immutable once built and safe for concurrent reads.
type Descriptor struct {
	EntityType string
	Table      string
	IDField    string
	IDStrategy IDStrategy
	Storage    Storage
	Dynamic    []DynamicAttribute

	paths  []*Path
	byName map[string]*Path
	newFn  func() any
}

type DescriptorOption func(*Descriptor)

func WithTable(table string) DescriptorOption {
	return func(d *Descriptor) { d.Table = table }
}

func WithID(field string, strategy IDStrategy) DescriptorOption {
	return func(d *Descriptor) {
		d.IDField = field
		d.IDStrategy = strategy
	}
}

func WithStorage(s Storage) DescriptorOption {
	return func(d *Descriptor) { d.Storage = s }
}

func WithDynamic(attrs ...DynamicAttribute) DescriptorOption {
	return func(d *Descriptor) { d.Dynamic = append(d.Dynamic, attrs...) }
}

// NewDescriptor builds a descriptor for entityType. newFn must return a fresh
// blank instance on every call. Defaults: table = entity type, id field "id"
// with a sequence strategy, memory storage.
func NewDescriptor(entityType string, newFn func() any, paths []*Path, opts ...DescriptorOption) (*Descriptor, error) {
	d := &Descriptor{
		EntityType: entityType,
		Table:      entityType,
		IDField:    "id",
		IDStrategy: IDSequence,
		Storage:    StorageMemory,
		byName:     make(map[string]*Path, len(paths)),
		newFn:      newFn,
	}
	for _, opt := range opts {
		opt(d)
	}
	if entityType == "" {
		return nil, fmt.Errorf("descriptor: empty entity type")
	}
	if newFn == nil {
		return nil, fmt.Errorf("descriptor %s: missing constructor", entityType)
	}
	for _, p := range paths {
		if _, dup := d.byName[p.Name]; dup {
			return nil, fmt.Errorf("descriptor %s: duplicate field %s", entityType, p.Name)
		}
		if p.Kind == KindEntityRef && p.Target == "" {
			return nil, fmt.Errorf("descriptor %s: reference field %s has no target", entityType, p.Name)
		}
		if p.Column == "" {
			p.Column = p.Name
		}
		d.byName[p.Name] = p
		d.paths = append(d.paths, p)
	}
	if _, ok := d.byName[d.IDField]; !ok {
		return nil, fmt.Errorf("descriptor %s: id field %s is not declared", entityType, d.IDField)
	}
	return d, nil
}

// Resolve returns the path for a field name.
func (d *Descriptor) Resolve(name string) (*Path, bool) {
	p, ok := d.byName[name]
	return p, ok
}

// Paths returns all paths in declaration order.
func (d *Descriptor) Paths() []*Path {
	out := make([]*Path, len(d.paths))
	copy(out, d.paths)
	return out
}

// FieldNames returns all field names in declaration order.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, len(d.paths))
	for i, p := range d.paths {
		names[i] = p.Name
	}
	return names
}

// IDPath returns the path of the identity field.
func (d *Descriptor) IDPath() *Path {
	return d.byName[d.IDField]
}

// New returns a blank instance of the entity type.
func (d *Descriptor) New() any {
	return d.newFn()
}

// ID reads the identity of entity.
func (d *Descriptor) ID(entity any) any {
	return d.IDPath().Get(entity)
}

func (d *Descriptor) SetID(entity any, id any) error {
	return d.IDPath().Set(entity, id)
}

// HasDynamic reports whether name is a declared dynamic attribute.
func (d *Descriptor) HasDynamic(name string) bool {
	for _, a := range d.Dynamic {
		if a.Name == name {
			return true
		}
	}
	return false
}

// ToMap renders entity as a flat field map. Referenced entities render as
// their identity.
func (d *Descriptor) ToMap(entity any) map[string]any {
	out := make(map[string]any, len(d.paths))
	for _, p := range d.paths {
		v := p.Get(entity)
		if p.Kind == KindEntityRef {
			v = RefID(v)
		}
		out[p.Name] = v
	}
	return out
}

// Clone returns an independent copy of entity. Collection values are copied
// and referenced records are cloned with it; referenced struct entities are
// shared.
func (d *Descriptor) Clone(entity any) (any, error) {
	if r, ok := entity.(*Record); ok {
		return r.Clone(), nil
	}
	out := d.New()
	for _, p := range d.paths {
		if err := p.Set(out, cloneValue(p.Get(entity), map[*Record]*Record{})); err != nil {
			return nil, fmt.Errorf("clone %s: %w", d.EntityType, err)
		}
	}
	return out, nil
}

// Record is the map-backed entity instance produced by descriptors loaded
// from descriptor files.
type Record struct {
	entityType string
	idField    string
	values     map[string]any
}

func NewRecord(entityType, idField string) *Record {
	return &Record{entityType: entityType, idField: idField, values: make(map[string]any)}
}

func (r *Record) EntityType() string { return r.entityType }

func (r *Record) EntityID() any { return r.values[r.idField] }

func (r *Record) Get(name string) any { return r.values[name] }

func (r *Record) Set(name string, value any) { r.values[name] = value }

// Clone deep-copies the record, including referenced records. Reference
// cycles are preserved.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return cloneRecord(r, map[*Record]*Record{})
}

func cloneRecord(r *Record, seen map[*Record]*Record) *Record {
	if c, ok := seen[r]; ok {
		return c
	}
	c := &Record{entityType: r.entityType, idField: r.idField, values: make(map[string]any, len(r.values))}
	seen[r] = c
	for k, v := range r.values {
		c.values[k] = cloneValue(v, seen)
	}
	return c
}

func cloneValue(v any, seen map[*Record]*Record) any {
	switch t := v.(type) {
	case *Record:
		if t == nil {
			return t
		}
		return cloneRecord(t, seen)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e, seen)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e, seen)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	}
	return v
}

// Keys returns the names of all assigned slots, sorted.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
