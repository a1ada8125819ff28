package store

import (
	"context"
	"encoding/json"
	"fmt"

	"graph-persistence/internal/metadata"
)

// Bootstrap creates the system tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}

// EntityTypes returns the entity types recorded in _entities. It is the
// persistence catalog the registry validates against.
func (s *Store) EntityTypes(ctx context.Context) ([]string, error) {
	rows, err := QueryRows(ctx, s.DB, "SELECT name FROM _entities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("load entity catalog: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name, _ := row["name"].(string)
		names = append(names, name)
	}
	return names, nil
}

type fieldDefinition struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Column string   `json:"column"`
	Target string   `json:"target,omitempty"`
	Values []string `json:"values,omitempty"`
}

type entityDefinition struct {
	IDField    string            `json:"id_field"`
	IDStrategy string            `json:"id_strategy"`
	Fields     []fieldDefinition `json:"fields"`
}

// RecordEntity upserts the catalog row for desc.
func (s *Store) RecordEntity(ctx context.Context, desc *metadata.Descriptor) error {
	def := entityDefinition{IDField: desc.IDField, IDStrategy: string(desc.IDStrategy)}
	for _, p := range desc.Paths() {
		def.Fields = append(def.Fields, fieldDefinition{
			Name:   p.Name,
			Kind:   p.Kind.String(),
			Column: p.Column,
			Target: p.Target,
			Values: p.Values,
		})
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition of %s: %w", desc.EntityType, err)
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO _entities (name, table_name, storage, definition) VALUES (%s, %s, %s, %s)
ON CONFLICT (name) DO UPDATE SET table_name = EXCLUDED.table_name, storage = EXCLUDED.storage, definition = EXCLUDED.definition`,
		pb.Add(desc.EntityType), pb.Add(desc.Table), pb.Add(string(desc.Storage)), pb.Add(string(data)))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("record entity %s: %w", desc.EntityType, MapError(s.Dialect, err))
	}
	return nil
}

// CatalogEntry is one row of _entities.
type CatalogEntry struct {
	Name       string         `json:"name"`
	Table      string         `json:"table"`
	Storage    string         `json:"storage"`
	Definition map[string]any `json:"definition"`
	CreatedAt  any            `json:"createdAt,omitempty"`
	UpdatedAt  any            `json:"updatedAt,omitempty"`
}

const catalogColumns = "name, table_name, storage, definition, created_at, updated_at"

// CatalogEntries returns every catalog row ordered by name.
func (s *Store) CatalogEntries(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := QueryRows(ctx, s.DB, "SELECT "+catalogColumns+" FROM _entities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	out := make([]CatalogEntry, 0, len(rows))
	for _, row := range rows {
		e, err := catalogEntry(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// CatalogEntry returns the catalog row for name, or ErrNotFound.
func (s *Store) CatalogEntry(ctx context.Context, name string) (CatalogEntry, error) {
	pb := s.Dialect.NewParamBuilder()
	row, err := QueryRow(ctx, s.DB, "SELECT "+catalogColumns+" FROM _entities WHERE name = "+pb.Add(name), pb.Params()...)
	if err != nil {
		return CatalogEntry{}, err
	}
	return catalogEntry(row)
}

func catalogEntry(row map[string]any) (CatalogEntry, error) {
	e := CatalogEntry{CreatedAt: row["created_at"], UpdatedAt: row["updated_at"]}
	e.Name, _ = row["name"].(string)
	e.Table, _ = row["table_name"].(string)
	e.Storage, _ = row["storage"].(string)
	switch def := row["definition"].(type) {
	case map[string]any:
		e.Definition = def
	case string:
		if err := json.Unmarshal([]byte(def), &e.Definition); err != nil {
			return CatalogEntry{}, fmt.Errorf("decode definition of %s: %w", e.Name, err)
		}
	}
	return e, nil
}
