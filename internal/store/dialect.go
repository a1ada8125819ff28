package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"graph-persistence/internal/metadata"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a field kind to the database DDL type.
	ColumnType(kind metadata.FieldKind) string

	// BigIntType is the column type of references to sequence ids.
	BigIntType() string

	// SequenceIDColumn returns the DDL for a database-generated integer primary key.
	SequenceIDColumn(name string) string

	// SystemTablesSQL returns the DDL for the system tables.
	SystemTablesSQL() string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)

	// GetColumns returns existing column names and types for a table.
	GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error)

	// InExpr builds a SQL expression for the IN operator.
	InExpr(field string, pb ParamBuilder, values []any) string

	// NotInExpr builds a SQL expression for the NOT IN operator.
	NotInExpr(field string, pb ParamBuilder, values []any) string

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

type paramBuilder struct {
	prefix string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("%s%d", p.prefix, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
func (p *paramBuilder) Count() int    { return len(p.params) }

// expandIn renders "field IN (p1, p2, ...)". An empty list matches nothing
// for IN and everything for NOT IN.
func expandIn(field string, pb ParamBuilder, values []any, not bool) string {
	if len(values) == 0 {
		if not {
			return "1=1"
		}
		return "1=0"
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	op := "IN"
	if not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", field, op, strings.Join(phs, ", "))
}
