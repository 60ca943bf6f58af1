package library

import (
	"errors"
	"strings"
)

var (
	// ErrValidation is returned when required fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an operation names an unknown id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateModel is returned when a custom AI model name clashes with a
	// built-in model or with a custom model used by another prompt.
	ErrDuplicateModel = errors.New("duplicate ai model")
	// ErrDuplicateID is returned when a record with the same id is already live.
	ErrDuplicateID = errors.New("duplicate id")
)

// FieldError describes one rejected field.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Rule + ")"
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldNames returns the names of the rejected fields.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}
