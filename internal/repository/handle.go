package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
)

// AccessHandle is the data-access object for one entity type.
type AccessHandle interface {
	EntityType() string
	// FindByID returns (nil, false, nil) when no row has the id.
	FindByID(ctx context.Context, id any) (any, bool, error)
	// Save inserts or updates entity and returns the persisted instance.
	Save(ctx context.Context, entity any) (any, error)
	// DeleteByID removes the row; a missing id is not an error.
	DeleteByID(ctx context.Context, id any) error
	// FindMatching returns entities matching pred in the given order. A nil
	// page returns every match.
	FindMatching(ctx context.Context, pred query.Expr, orders []query.OrderSpec, page *query.PageRequest) (*Page, error)
}

type Page struct {
	Content       []any
	TotalElements int64
}

// newID returns an application-generated id for strategy, or false when the
// backend assigns ids.
func newID(strategy metadata.IDStrategy) (any, bool) {
	switch strategy {
	case metadata.IDUUID:
		return uuid.NewString(), true
	case metadata.IDULID:
		return ulid.Make().String(), true
	}
	return nil, false
}

// emptyID reports whether id means "not persisted yet".
func emptyID(id any) bool {
	switch v := id.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	}
	return false
}

// idKey is the canonical string form of an id, used as a map or hash key.
// Numeric ids of any Go type share one key.
func idKey(id any) string {
	switch v := id.(type) {
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	case float32:
		if v == float32(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return fmt.Sprint(metadata.RefID(id))
}
