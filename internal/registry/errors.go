package registry

import "fmt"

// Registration parts named by the errors below.
const (
	KindAccessHandle = "access handle"
	KindDescriptor   = "field-path descriptor"
)

// DuplicateRegistrationError means two handles or two descriptors claim the
// same entity type.
type DuplicateRegistrationError struct {
	EntityType string
	Kind       string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("entity %s: more than one %s registered", e.EntityType, e.Kind)
}

// IncompleteRegistrationError means a catalog entity type lacks a handle or
// a descriptor.
type IncompleteRegistrationError struct {
	EntityType string
	Missing    string
}

func (e *IncompleteRegistrationError) Error() string {
	return fmt.Sprintf("entity %s: no %s registered", e.EntityType, e.Missing)
}

type UnknownEntityTypeError struct {
	EntityType string
}

func (e *UnknownEntityTypeError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.EntityType)
}
