package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"graph-persistence/internal/config"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store wraps a database connection and dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens a Store from config.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	if driver == "sqlite" && cfg.Name != ":memory:" && cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dialect := NewDialect(driver)
	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "postgres" {
		if cfg.PoolSize > 0 {
			db.SetMaxOpenConns(cfg.PoolSize)
		}
	} else if driver == "sqlite" {
		// SQLite: single writer, WAL mode for concurrent reads. An in-memory
		// database only exists on its one connection.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		// LIKE matches case-sensitively, as on PostgreSQL.
		if _, err := db.ExecContext(ctx, "PRAGMA case_sensitive_like=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable case-sensitive LIKE: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{DB: db, Dialect: dialect}, nil
}

// NewWithDB wraps an already open connection, e.g. a sqlmock or test
// database.
func NewWithDB(db *sql.DB, dialect Dialect) *Store {
	return &Store{DB: db, Dialect: dialect}
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// QueryRows executes a query and returns results as []map[string]any.
func QueryRows(ctx context.Context, q Querier, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// QueryRow executes a query and returns a single row as map[string]any.
func QueryRow(ctx context.Context, q Querier, sqlStr string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec executes a statement and returns the number of rows affected.
func Exec(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MapError maps a database error to a well-known sentinel error using the store's dialect.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}

// normalizeValue turns driver byte slices into strings. Kind-specific
// decoding (times, booleans, JSON columns) is left to the caller, which
// knows the field kind.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
