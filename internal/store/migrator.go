package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"graph-persistence/internal/metadata"
)

type Migrator struct {
	store  *Store
	logger *zap.Logger
}

func NewMigrator(store *Store, logger *zap.Logger) *Migrator {
	return &Migrator{store: store, logger: logger}
}

// MigrateAll materialises the tables of every SQL-backed descriptor and
// records every descriptor in the entity catalog.
func (m *Migrator) MigrateAll(ctx context.Context, descs []*metadata.Descriptor) error {
	byType := make(map[string]*metadata.Descriptor, len(descs))
	for _, d := range descs {
		byType[d.EntityType] = d
	}
	for _, d := range descs {
		if d.Storage == metadata.StorageSQL {
			if err := m.Migrate(ctx, d, byType); err != nil {
				return err
			}
		}
		if err := m.store.RecordEntity(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the table matches the descriptor. Creates the table if it
// doesn't exist, or adds missing columns. Columns are never dropped.
func (m *Migrator) Migrate(ctx context.Context, desc *metadata.Descriptor, byType map[string]*metadata.Descriptor) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, desc.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return m.createTable(ctx, desc, byType)
	}
	return m.alterTable(ctx, desc, byType)
}

func (m *Migrator) createTable(ctx context.Context, desc *metadata.Descriptor, byType map[string]*metadata.Descriptor) error {
	var cols []string
	for _, p := range desc.Paths() {
		cols = append(cols, m.columnDef(desc, p, byType))
	}
	sqlStr := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", desc.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("create table %s: %w", desc.Table, err)
	}
	m.logger.Info("created table", zap.String("entity", desc.EntityType), zap.String("table", desc.Table))
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, desc *metadata.Descriptor, byType map[string]*metadata.Descriptor) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, desc.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", desc.Table, err)
	}
	for _, p := range desc.Paths() {
		if _, ok := existing[p.Column]; ok {
			continue
		}
		sqlStr := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", desc.Table, p.Column, m.columnType(p, byType))
		if _, err := m.store.DB.ExecContext(ctx, sqlStr); err != nil {
			return fmt.Errorf("add column %s.%s: %w", desc.Table, p.Column, err)
		}
		m.logger.Info("added column", zap.String("table", desc.Table), zap.String("column", p.Column))
	}
	return nil
}

func (m *Migrator) columnDef(desc *metadata.Descriptor, p *metadata.Path, byType map[string]*metadata.Descriptor) string {
	if p.Name == desc.IDField {
		if desc.IDStrategy == metadata.IDSequence {
			return m.store.Dialect.SequenceIDColumn(p.Column)
		}
		return p.Column + " TEXT PRIMARY KEY"
	}
	return p.Column + " " + m.columnType(p, byType)
}

// columnType resolves reference columns to the id type of their target.
func (m *Migrator) columnType(p *metadata.Path, byType map[string]*metadata.Descriptor) string {
	if p.Kind == metadata.KindEntityRef {
		if target, ok := byType[p.Target]; ok && target.IDStrategy == metadata.IDSequence {
			return m.store.Dialect.BigIntType()
		}
		return "TEXT"
	}
	return m.store.Dialect.ColumnType(p.Kind)
}
