package service

import (
	"context"
	"fmt"
	"reflect"

	"graph-persistence/internal/metadata"
)

// SaveGraph saves entity together with every entity instance held by its
// reference fields, referenced entities first so their ids exist when the
// referencing row is written. Fields holding a bare id are left alone. In a
// reference cycle the entity reached second is saved before its partner has
// an id.
func (s *Service) SaveGraph(ctx context.Context, entity any) (any, error) {
	return s.saveGraph(ctx, entity, make(map[any]bool), 0)
}

func (s *Service) saveGraph(ctx context.Context, entity any, seen map[any]bool, depth int) (any, error) {
	typed, ok := entity.(metadata.Typed)
	if !ok {
		return nil, fmt.Errorf("save %T: %w", entity, ErrUntypedEntity)
	}
	if depth > s.maxDepth {
		return nil, fmt.Errorf("save %s graph at depth %d: %w", typed.EntityType(), depth, ErrMaxDepth)
	}
	if reflect.ValueOf(entity).Kind() == reflect.Pointer {
		if seen[entity] {
			return entity, nil
		}
		seen[entity] = true
	}

	desc, err := s.reg.Descriptor(typed.EntityType())
	if err != nil {
		return nil, err
	}
	for _, p := range desc.Paths() {
		if p.Kind != metadata.KindEntityRef {
			continue
		}
		child, ok := p.Get(entity).(metadata.Typed)
		if !ok || isNilPointer(child) {
			continue
		}
		if _, err := s.saveGraph(ctx, child, seen, depth+1); err != nil {
			return nil, err
		}
	}
	return s.Save(ctx, entity)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
