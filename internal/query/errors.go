package query

import (
	"fmt"

	"graph-persistence/internal/metadata"
)

// UnknownFieldError reports a filter or order field that the entity's
// descriptor cannot resolve.
type UnknownFieldError struct {
	EntityType string
	Field      string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q on entity %s", e.Field, e.EntityType)
}

// UnsupportedOperatorError reports an operator that is not valid for the
// field's kind.
type UnsupportedOperatorError struct {
	Field    string
	Kind     metadata.FieldKind
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %s is not supported on %s field %q", e.Operator, e.Kind, e.Field)
}

// InvalidValueError reports a literal whose shape cannot be used with the
// operator at all, such as IN with a non-list value.
type InvalidValueError struct {
	Field    string
	Operator Operator
	Value    any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %v (%T) for %s on field %q", e.Value, e.Value, e.Operator, e.Field)
}

// InvalidPageError reports paging input that cannot address a page: a
// negative offset or a page whose offset overflows.
type InvalidPageError struct {
	Page int
	Size int
}

func (e *InvalidPageError) Error() string {
	return fmt.Sprintf("invalid page %d of size %d", e.Page, e.Size)
}
