package service

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxDepth is returned when a property map nests deeper than the
	// configured limit.
	ErrMaxDepth = errors.New("property map nesting exceeds the depth limit")
	// ErrUntypedEntity is returned by Save for values that do not report
	// their entity type.
	ErrUntypedEntity = errors.New("entity does not report its entity type")
)

// MissingEntityError means a property map named an id with no stored row.
type MissingEntityError struct {
	EntityType string
	ID         any
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.EntityType, e.ID)
}
