package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"graph-persistence/internal/metadata"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }
func (d *PostgresDialect) BigIntType() string { return "BIGINT" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{prefix: "$"}
}

func (d *PostgresDialect) ColumnType(kind metadata.FieldKind) string {
	switch kind {
	case metadata.KindBoolean:
		return "BOOLEAN"
	case metadata.KindNumber:
		return "DOUBLE PRECISION"
	case metadata.KindDate:
		return "DATE"
	case metadata.KindDateTime:
		return "TIMESTAMPTZ"
	case metadata.KindTime:
		return "TIME"
	default:
		// string, enum, uuid/ulid references, JSON-encoded collections
		return "TEXT"
	}
}

func (d *PostgresDialect) SequenceIDColumn(name string) string {
	return name + " BIGSERIAL PRIMARY KEY"
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, pb, values, false)
}

func (d *PostgresDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, pb, values, true)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _entities (
    name        TEXT PRIMARY KEY,
    table_name  TEXT NOT NULL,
    storage     TEXT NOT NULL,
    definition  JSONB NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
)`
