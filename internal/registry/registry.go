package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/repository"
)

// ErrNotInitialized is returned by lookups before the first successful
// Initialize.
var ErrNotInitialized = errors.New("entity registry is not initialized")

// Catalog lists the entity types the persistence backend knows about.
type Catalog interface {
	EntityTypes(ctx context.Context) ([]string, error)
}

// HandleSource yields every data-access handle available to the process.
type HandleSource interface {
	Handles(ctx context.Context) ([]repository.AccessHandle, error)
}

// StaticCatalog is a fixed catalog.
type StaticCatalog []string

func (c StaticCatalog) EntityTypes(context.Context) ([]string, error) {
	return c, nil
}

type snapshot struct {
	handles     map[string]repository.AccessHandle
	descriptors map[string]*metadata.Descriptor
	types       []string
}

// Registry maps each entity type to its access handle and field-path
// descriptor. Lookups read an immutable snapshot and never block.
type Registry struct {
	catalog     Catalog
	descriptors metadata.DescriptorSource
	handles     HandleSource
	logger      *zap.Logger

	initMu  sync.Mutex
	current atomic.Pointer[snapshot]
}

func New(catalog Catalog, descriptors metadata.DescriptorSource, handles HandleSource, logger *zap.Logger) *Registry {
	return &Registry{
		catalog:     catalog,
		descriptors: descriptors,
		handles:     handles,
		logger:      logger,
	}
}

// Initialize validates that every catalog entity type has exactly one handle
// and one descriptor, then publishes the mapping. On failure the previously
// published mapping, if any, stays in place.
func (r *Registry) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	types, err := r.catalog.EntityTypes(ctx)
	if err != nil {
		return fmt.Errorf("list catalog entity types: %w", err)
	}

	handleList, err := r.handles.Handles(ctx)
	if err != nil {
		return fmt.Errorf("discover access handles: %w", err)
	}
	handles := make(map[string]repository.AccessHandle, len(handleList))
	for _, h := range handleList {
		t := h.EntityType()
		if _, dup := handles[t]; dup {
			return &DuplicateRegistrationError{EntityType: t, Kind: KindAccessHandle}
		}
		handles[t] = h
	}

	descList, err := r.descriptors.Descriptors(ctx)
	if err != nil {
		return fmt.Errorf("discover field-path descriptors: %w", err)
	}
	descriptors := make(map[string]*metadata.Descriptor, len(descList))
	for _, d := range descList {
		if _, dup := descriptors[d.EntityType]; dup {
			return &DuplicateRegistrationError{EntityType: d.EntityType, Kind: KindDescriptor}
		}
		descriptors[d.EntityType] = d
	}

	inCatalog := make(map[string]bool, len(types))
	var sorted []string
	for _, t := range types {
		if !inCatalog[t] {
			inCatalog[t] = true
			sorted = append(sorted, t)
		}
	}
	sort.Strings(sorted)
	for _, t := range sorted {
		if _, ok := handles[t]; !ok {
			return &IncompleteRegistrationError{EntityType: t, Missing: KindAccessHandle}
		}
		if _, ok := descriptors[t]; !ok {
			return &IncompleteRegistrationError{EntityType: t, Missing: KindDescriptor}
		}
	}

	// Types outside the catalog are served when both parts exist.
	all := append([]string(nil), sorted...)
	for t := range handles {
		if inCatalog[t] {
			continue
		}
		if _, ok := descriptors[t]; ok {
			r.logger.Warn("entity type registered but missing from catalog", zap.String("entity", t))
			all = append(all, t)
		}
	}
	sort.Strings(all)

	snap := &snapshot{handles: handles, descriptors: descriptors, types: all}
	r.current.Store(snap)
	r.logger.Info("entity registry initialized", zap.Int("entities", len(all)), zap.Strings("types", all))
	return nil
}

func (r *Registry) snapshot() (*snapshot, error) {
	s := r.current.Load()
	if s == nil {
		return nil, ErrNotInitialized
	}
	return s, nil
}

// Handle returns the access handle for entityType.
func (r *Registry) Handle(entityType string) (repository.AccessHandle, error) {
	s, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	h, ok := s.handles[entityType]
	if !ok || !s.has(entityType) {
		return nil, &UnknownEntityTypeError{EntityType: entityType}
	}
	return h, nil
}

// Descriptor returns the field-path descriptor for entityType.
func (r *Registry) Descriptor(entityType string) (*metadata.Descriptor, error) {
	s, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	d, ok := s.descriptors[entityType]
	if !ok || !s.has(entityType) {
		return nil, &UnknownEntityTypeError{EntityType: entityType}
	}
	return d, nil
}

// EntityTypes returns the served entity types, sorted. It is empty before
// initialization.
func (r *Registry) EntityTypes() []string {
	s := r.current.Load()
	if s == nil {
		return nil
	}
	return append([]string(nil), s.types...)
}

func (s *snapshot) has(entityType string) bool {
	i := sort.SearchStrings(s.types, entityType)
	return i < len(s.types) && s.types[i] == entityType
}
