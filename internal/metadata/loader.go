package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNoSources is returned when a scanner is built without any source
// location. An empty scan would silently register nothing.
var ErrNoSources = errors.New("no descriptor source locations configured")

// DescriptorSource yields every field-path descriptor available to the
// process.
type DescriptorSource interface {
	Descriptors(ctx context.Context) ([]*Descriptor, error)
}

// Descriptors is a fixed descriptor list. It implements DescriptorSource.
type Descriptors []*Descriptor

func (d Descriptors) Descriptors(context.Context) ([]*Descriptor, error) {
	return d, nil
}

type descriptorFile struct {
	Entities []entityDef `yaml:"entities"`
}

type entityDef struct {
	Entity  string             `yaml:"entity"`
	Table   string             `yaml:"table"`
	ID      idDef              `yaml:"id"`
	Storage string             `yaml:"storage"`
	Fields  []fieldDef         `yaml:"fields"`
	Dynamic []DynamicAttribute `yaml:"dynamic"`
}

type idDef struct {
	Field    string `yaml:"field"`
	Strategy string `yaml:"strategy"`
}

type fieldDef struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Column string   `yaml:"column"`
	Target string   `yaml:"target"`
	Values []string `yaml:"values"`
}

// DirectoryScanner reads descriptor files (*.yaml, *.yml) from a set of
// files or directories. Directories are walked recursively.
type DirectoryScanner struct {
	sources []string
}

func NewDirectoryScanner(sources []string) (*DirectoryScanner, error) {
	var cleaned []string
	for _, s := range sources {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoSources
	}
	return &DirectoryScanner{sources: cleaned}, nil
}

func (s *DirectoryScanner) Sources() []string {
	return append([]string(nil), s.sources...)
}

// Descriptors scans all sources and returns descriptors in discovery order.
// Duplicate entity types are returned as found; rejecting them is the
// registry's job.
func (s *DirectoryScanner) Descriptors(ctx context.Context) ([]*Descriptor, error) {
	var out []*Descriptor
	for _, src := range s.sources {
		files, err := descriptorFiles(src)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("read descriptor file %s: %w", f, err)
			}
			descs, err := ParseDescriptors(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
			out = append(out, descs...)
		}
	}
	return out, nil
}

// Snapshot caches the descriptors of an underlying source so every consumer
// sees the same instances. Refresh rescans.
type Snapshot struct {
	source DescriptorSource

	mu     sync.RWMutex
	descs  []*Descriptor
	loaded bool
}

func NewSnapshot(source DescriptorSource) *Snapshot {
	return &Snapshot{source: source}
}

// Descriptors returns the cached descriptors, scanning on first use.
func (s *Snapshot) Descriptors(ctx context.Context) ([]*Descriptor, error) {
	s.mu.RLock()
	if s.loaded {
		descs := s.descs
		s.mu.RUnlock()
		return descs, nil
	}
	s.mu.RUnlock()
	return s.Refresh(ctx)
}

// Refresh rescans the source. On error the cached descriptors are kept.
func (s *Snapshot) Refresh(ctx context.Context) ([]*Descriptor, error) {
	descs, err := s.source.Descriptors(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.descs, s.loaded = descs, true
	s.mu.Unlock()
	return descs, nil
}

func descriptorFiles(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("descriptor source %s: %w", src, err)
	}
	if !info.IsDir() {
		return []string{src}, nil
	}
	var files []string
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan descriptor source %s: %w", src, err)
	}
	return files, nil
}

// ParseDescriptors decodes one descriptor document into map-backed
// descriptors whose instances are *Record values.
func ParseDescriptors(data []byte) ([]*Descriptor, error) {
	var file descriptorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse descriptor file: %w", err)
	}
	out := make([]*Descriptor, 0, len(file.Entities))
	for _, def := range file.Entities {
		d, err := def.build()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (def entityDef) build() (*Descriptor, error) {
	if def.Entity == "" {
		return nil, fmt.Errorf("descriptor without entity name")
	}
	idField := def.ID.Field
	if idField == "" {
		idField = "id"
	}
	strategy := IDSequence
	if def.ID.Strategy != "" {
		strategy = IDStrategy(strings.ToLower(def.ID.Strategy))
	}
	switch strategy {
	case IDSequence, IDUUID, IDULID:
	default:
		return nil, fmt.Errorf("entity %s: unknown id strategy %q", def.Entity, def.ID.Strategy)
	}
	storage := StorageSQL
	if def.Storage != "" {
		storage = Storage(strings.ToLower(def.Storage))
	}
	switch storage {
	case StorageSQL, StorageRedis, StorageMemory:
	default:
		return nil, fmt.Errorf("entity %s: unknown storage %q", def.Entity, def.Storage)
	}

	paths := make([]*Path, 0, len(def.Fields)+1)
	hasID := false
	for _, f := range def.Fields {
		kind, err := ParseFieldKind(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("entity %s field %s: %w", def.Entity, f.Name, err)
		}
		p := RecordField(f.Name, kind)
		if f.Column != "" {
			p.Column = f.Column
		}
		p.Target = f.Target
		p.Values = f.Values
		paths = append(paths, p)
		if f.Name == idField {
			hasID = true
		}
	}
	if !hasID {
		kind := KindString
		if strategy == IDSequence {
			kind = KindNumber
		}
		paths = append([]*Path{RecordField(idField, kind)}, paths...)
	}

	entityType := def.Entity
	opts := []DescriptorOption{WithID(idField, strategy), WithStorage(storage), WithDynamic(def.Dynamic...)}
	if def.Table != "" {
		opts = append(opts, WithTable(def.Table))
	}
	return NewDescriptor(entityType, func() any { return NewRecord(entityType, idField) }, paths, opts...)
}
