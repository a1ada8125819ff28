package dynattr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"graph-persistence/internal/metadata"
)

// Setter applies a value to a computed attribute of entity. It may write any
// number of real fields.
type Setter interface {
	SetValue(entity any, value any) error
}

type SetterFunc func(entity any, value any) error

func (f SetterFunc) SetValue(entity any, value any) error { return f(entity, value) }

type key struct {
	entityType string
	field      string
}

// Registry maps (entity type, attribute name) to a Setter. A nil *Registry
// has no setters.
type Registry struct {
	mu      sync.RWMutex
	setters map[key]Setter
}

func NewRegistry() *Registry {
	return &Registry{setters: make(map[key]Setter)}
}

// Register adds a setter. Registering the same attribute twice is an error.
func (r *Registry) Register(entityType, field string, s Setter) error {
	if s == nil {
		return fmt.Errorf("dynamic attribute %s.%s: nil setter", entityType, field)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{entityType, field}
	if _, dup := r.setters[k]; dup {
		return fmt.Errorf("dynamic attribute %s.%s already registered", entityType, field)
	}
	r.setters[k] = s
	return nil
}

// Setter returns the setter registered for the attribute, if any.
func (r *Registry) Setter(entityType, field string) (Setter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.setters[key{entityType, field}]
	return s, ok
}

// Len returns the number of registered setters.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.setters)
}

// ExprSetter evaluates an expr-lang expression with the variables `value`
// (the incoming value) and `entity` (the current field map). The expression
// must return a map of field name to new value, or nil for no change.
type ExprSetter struct {
	desc    *metadata.Descriptor
	attr    metadata.DynamicAttribute
	program *vm.Program
}

func NewExprSetter(desc *metadata.Descriptor, attr metadata.DynamicAttribute) (*ExprSetter, error) {
	if _, clash := desc.Resolve(attr.Name); clash {
		return nil, fmt.Errorf("dynamic attribute %s.%s shadows a declared field", desc.EntityType, attr.Name)
	}
	prog, err := expr.Compile(attr.Expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile dynamic attribute %s.%s: %w", desc.EntityType, attr.Name, err)
	}
	return &ExprSetter{desc: desc, attr: attr, program: prog}, nil
}

func (s *ExprSetter) SetValue(entity any, value any) error {
	env := map[string]any{
		"value":  value,
		"entity": s.desc.ToMap(entity),
	}
	out, err := expr.Run(s.program, env)
	if err != nil {
		return fmt.Errorf("evaluate dynamic attribute %s.%s: %w", s.desc.EntityType, s.attr.Name, err)
	}
	if out == nil {
		return nil
	}
	assignments, ok := out.(map[string]any)
	if !ok {
		return fmt.Errorf("dynamic attribute %s.%s: expression returned %T, want a field map", s.desc.EntityType, s.attr.Name, out)
	}

	names := make([]string, 0, len(assignments))
	for name := range assignments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, ok := s.desc.Resolve(name)
		if !ok {
			return fmt.Errorf("dynamic attribute %s.%s: assigns unknown field %s", s.desc.EntityType, s.attr.Name, name)
		}
		if name == s.desc.IDField {
			return fmt.Errorf("dynamic attribute %s.%s: may not assign the id field", s.desc.EntityType, s.attr.Name)
		}
		if err := p.Set(entity, assignments[name]); err != nil {
			return fmt.Errorf("dynamic attribute %s.%s: set %s: %w", s.desc.EntityType, s.attr.Name, name, err)
		}
	}
	return nil
}

// FromDescriptors compiles every declared dynamic attribute into a registry.
func FromDescriptors(descs []*metadata.Descriptor) (*Registry, error) {
	reg := NewRegistry()
	for _, d := range descs {
		for _, attr := range d.Dynamic {
			s, err := NewExprSetter(d, attr)
			if err != nil {
				return nil, err
			}
			if err := reg.Register(d.EntityType, attr.Name, s); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

// Replace swaps in the setters of other, dropping the current ones.
func (r *Registry) Replace(other *Registry) {
	next := make(map[key]Setter)
	if other != nil {
		other.mu.RLock()
		for k, s := range other.setters {
			next[k] = s
		}
		other.mu.RUnlock()
	}
	r.mu.Lock()
	r.setters = next
	r.mu.Unlock()
}
