package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"graph-persistence/internal/dynattr"
	"graph-persistence/internal/instrument"
	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
	"graph-persistence/internal/repository"
)

const (
	DefaultIDAttribute = "id"
	DefaultMaxDepth    = 32
)

// Registry resolves the handle and descriptor of an entity type.
type Registry interface {
	Handle(entityType string) (repository.AccessHandle, error)
	Descriptor(entityType string) (*metadata.Descriptor, error)
}

// Setters looks up computed-attribute setters.
type Setters interface {
	Setter(entityType, field string) (dynattr.Setter, bool)
}

type Paging struct {
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	TotalCount int64 `json:"totalCount"`
}

// ListLoadResult is the outcome of FindAll. Paging is set only for paged
// requests; OrderBy always echoes the request.
type ListLoadResult struct {
	Data    []any                `json:"data"`
	Paging  *Paging              `json:"paging,omitempty"`
	OrderBy []query.OrderByEntry `json:"orderBy"`
}

type Option func(*Service)

// WithIDAttribute sets the property-map key that carries an entity's id.
func WithIDAttribute(name string) Option {
	return func(s *Service) { s.idAttr = name }
}

func WithMaxDepth(n int) Option {
	return func(s *Service) { s.maxDepth = n }
}

// Service is the generic entity façade. It holds no mutable state and is
// safe for concurrent use.
type Service struct {
	reg      Registry
	logger   *zap.Logger
	idAttr   string
	maxDepth int
}

func New(reg Registry, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{reg: reg, logger: logger, idAttr: DefaultIDAttribute, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(s)
	}
	if s.idAttr == "" {
		s.idAttr = DefaultIDAttribute
	}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxDepth
	}
	return s
}

// IDAttribute is the property-map key that carries an entity's id.
func (s *Service) IDAttribute() string { return s.idAttr }

func (s *Service) resolve(entityType string) (*metadata.Descriptor, repository.AccessHandle, error) {
	desc, err := s.reg.Descriptor(entityType)
	if err != nil {
		return nil, nil, err
	}
	h, err := s.reg.Handle(entityType)
	if err != nil {
		return nil, nil, err
	}
	return desc, h, nil
}

func startSpan(ctx context.Context, action, entityType string) (context.Context, instrument.Span) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "service", "entity", action)
	span.SetEntity(entityType, "")
	return ctx, span
}

func endSpan(span instrument.Span, err error) {
	if err != nil {
		span.SetStatus("error")
		span.SetMetadata("error", err.Error())
	} else {
		span.SetStatus("ok")
	}
	span.End()
}

// FindByID returns (nil, false, nil) when no entity has id.
func (s *Service) FindByID(ctx context.Context, entityType string, id any) (entity any, found bool, err error) {
	ctx, span := startSpan(ctx, "find_by_id", entityType)
	defer func() { endSpan(span, err) }()

	h, err := s.reg.Handle(entityType)
	if err != nil {
		return nil, false, err
	}
	entity, found, err = h.FindByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("find %s %v: %w", entityType, id, err)
	}
	return entity, found, nil
}

// FindAll compiles cfg against the entity's descriptor and runs it. Any
// compile error aborts before the backend is queried.
func (s *Service) FindAll(ctx context.Context, entityType string, cfg query.ListLoadConfig) (result *ListLoadResult, err error) {
	ctx, span := startSpan(ctx, "find_all", entityType)
	defer func() { endSpan(span, err) }()

	desc, h, err := s.resolve(entityType)
	if err != nil {
		return nil, err
	}
	compiled, err := query.Compile(desc, cfg)
	if err != nil {
		return nil, err
	}
	for _, f := range cfg.Filters {
		if f.IsDynamic {
			s.logger.Debug("dynamic filter skipped",
				zap.String("entity", entityType), zap.String("field", f.FieldName), zap.Stringer("operator", f.Operator))
		}
	}

	orderBy := cfg.OrderBy
	if orderBy == nil {
		orderBy = []query.OrderByEntry{}
	}
	page, err := h.FindMatching(ctx, compiled.Predicate, compiled.Orders, compiled.Page)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", entityType, err)
	}
	result = &ListLoadResult{Data: page.Content, OrderBy: orderBy}
	if result.Data == nil {
		result.Data = []any{}
	}
	if cfg.Paged() {
		result.Paging = &Paging{Limit: cfg.Limit, Offset: cfg.Offset, TotalCount: page.TotalElements}
	}
	span.SetMetadata("rows", len(result.Data))
	return result, nil
}

// Save persists entity through the handle of its runtime entity type.
func (s *Service) Save(ctx context.Context, entity any) (saved any, err error) {
	typed, ok := entity.(metadata.Typed)
	if !ok {
		return nil, fmt.Errorf("save %T: %w", entity, ErrUntypedEntity)
	}
	entityType := typed.EntityType()
	ctx, span := startSpan(ctx, "save", entityType)
	defer func() { endSpan(span, err) }()

	h, err := s.reg.Handle(entityType)
	if err != nil {
		return nil, err
	}
	saved, err = h.Save(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", entityType, err)
	}
	id := fmt.Sprint(metadata.RefID(saved))
	span.SetEntity(entityType, id)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "entity.saved", entityType, id, nil)
	return saved, nil
}

// Delete removes the entity with id. Deleting a missing id is a no-op for
// every bundled handle.
func (s *Service) Delete(ctx context.Context, entityType string, id any) (err error) {
	ctx, span := startSpan(ctx, "delete", entityType)
	defer func() { endSpan(span, err) }()

	h, err := s.reg.Handle(entityType)
	if err != nil {
		return err
	}
	if err := h.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete %s %v: %w", entityType, id, err)
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "entity.deleted", entityType, fmt.Sprint(id), nil)
	return nil
}

// FindOrCreateAndSetProperties loads the entity named by the id in props,
// or a blank one when props carries no id, and assigns every other key.
// Nested property maps under reference fields are hydrated recursively into
// the field's target type. A setter registered in setters takes precedence
// over direct assignment. The result is not saved.
func (s *Service) FindOrCreateAndSetProperties(ctx context.Context, entityType string, setters Setters, props map[string]any) (entity any, err error) {
	ctx, span := startSpan(ctx, "hydrate", entityType)
	defer func() { endSpan(span, err) }()
	return s.hydrate(ctx, entityType, setters, props, 0)
}

func (s *Service) hydrate(ctx context.Context, entityType string, setters Setters, props map[string]any, depth int) (any, error) {
	if depth > s.maxDepth {
		return nil, fmt.Errorf("hydrate %s at depth %d: %w", entityType, depth, ErrMaxDepth)
	}
	desc, h, err := s.resolve(entityType)
	if err != nil {
		return nil, err
	}

	idKey, id := s.identity(desc, props)
	var entity any
	if isEmptyID(id) {
		entity = desc.New()
	} else {
		found, ok, err := h.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find %s %v: %w", entityType, id, err)
		}
		if !ok {
			return nil, &MissingEntityError{EntityType: entityType, ID: id}
		}
		entity = found
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		if k == idKey || k == s.idAttr || k == desc.IDField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := props[key]
		path, isField := desc.Resolve(key)
		if nested, isMap := value.(map[string]any); isMap && isField && path.Kind == metadata.KindEntityRef {
			child, err := s.hydrate(ctx, path.Target, setters, nested, depth+1)
			if err != nil {
				return nil, err
			}
			value = child
		}
		if setters != nil {
			if setter, ok := setters.Setter(entityType, key); ok {
				if err := setter.SetValue(entity, value); err != nil {
					return nil, fmt.Errorf("set %s.%s: %w", entityType, key, err)
				}
				continue
			}
		}
		if !isField {
			return nil, &query.UnknownFieldError{EntityType: entityType, Field: key}
		}
		if err := path.Set(entity, value); err != nil {
			return nil, fmt.Errorf("set %s.%s: %w", entityType, key, err)
		}
	}
	return entity, nil
}

// identity returns the key and value carrying the entity id in props. The
// configured id attribute wins over the descriptor's id field.
func (s *Service) identity(desc *metadata.Descriptor, props map[string]any) (string, any) {
	if v, ok := props[s.idAttr]; ok {
		return s.idAttr, v
	}
	return desc.IDField, props[desc.IDField]
}

func isEmptyID(id any) bool {
	switch v := id.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	}
	return false
}
