package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"graph-persistence/internal/metadata"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }
func (d *SQLiteDialect) BigIntType() string { return "INTEGER" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &paramBuilder{prefix: "?"}
}

func (d *SQLiteDialect) ColumnType(kind metadata.FieldKind) string {
	switch kind {
	case metadata.KindBoolean:
		return "INTEGER"
	case metadata.KindNumber:
		return "REAL"
	default:
		// dates and times are stored as text
		return "TEXT"
	}
}

func (d *SQLiteDialect) SequenceIDColumn(name string) string {
	return name + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, pb, values, false)
}

func (d *SQLiteDialect) NotInExpr(field string, pb ParamBuilder, values []any) string {
	return expandIn(field, pb, values, true)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _entities (
    name        TEXT PRIMARY KEY,
    table_name  TEXT NOT NULL,
    storage     TEXT NOT NULL,
    definition  TEXT NOT NULL,
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now'))
)`
