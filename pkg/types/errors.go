package types

import (
	"errors"
	"fmt"
)

// ErrToolNotFound is returned when a record id is not present in a collection
type ErrToolNotFound struct {
	Path string
	Id   string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool not found: %s/%s", e.Path, e.Id)
}

// From checks if the given error is an ErrToolNotFound
func (e *ErrToolNotFound) From(err error) bool {
	var notFound *ErrToolNotFound
	return errors.As(err, &notFound)
}

// ValidationError is returned when a record fails the presence or category checks
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateFields checks that every field is present and the category is storable.
func ValidateFields(f ToolFields) error {
	switch {
	case f.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case f.Url == "":
		return &ValidationError{Field: "url", Reason: "required"}
	case f.Description == "":
		return &ValidationError{Field: "description", Reason: "required"}
	case f.Category == "":
		return &ValidationError{Field: "category", Reason: "required"}
	case !Category(f.Category).Valid():
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", f.Category)}
	}
	return nil
}
