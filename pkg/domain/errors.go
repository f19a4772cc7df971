package domain

import "fmt"

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports a malformed request, such as a missing required
// one-of field.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return "validation: " + e.Message
}

// InvalidStateError reports a request that conflicts with the current shape
// of the data, such as attaching a label to a parameter-type operation.
type InvalidStateError struct {
	Message string
}

func (e InvalidStateError) Error() string {
	return "invalid state: " + e.Message
}

// ReadOnlyError reports an attempted mutation of an archived procedure
// version or of equipment marked read-only.
type ReadOnlyError struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e ReadOnlyError) Error() string {
	return fmt.Sprintf("%s %s is read-only: %s", e.Entity, e.ID, e.Reason)
}
