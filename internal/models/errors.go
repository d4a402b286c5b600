package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every error surfaced by the tracking core matches exactly
// one of these via errors.Is.
var (
	ErrConfiguration = errors.New("invalid tracking configuration")
	ErrConflict      = errors.New("version conflict")
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrStore         = errors.New("store failure")
)

// Sentinel errors for request validation.
var (
	ErrMissingID   = errors.New("id is required")
	ErrMissingType = errors.New("type is required")
	ErrUnknownType = errors.New("unknown document type")
)

// ConfigurationError reports an unknown or conflicting tracking directive.
type ConfigurationError struct {
	Type   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Type, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidationError lists the fields that rejected a state change.
type ValidationError struct {
	Type   string
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	msg := ErrValidation.Error() + ": " + e.Type
	if len(e.Fields) > 0 {
		msg += " [" + strings.Join(e.Fields, ", ") + "]"
	}

	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports the first association chain hop that could not be resolved.
type NotFoundError struct {
	Link ChainLink
	Hop  int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s/%s (hop %d)", ErrNotFound, e.Link.Name, e.Link.ID, e.Hop)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StoreError wraps a persistence failure for the given operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return &ValidationError{
		Type:   "request",
		Fields: []string{field},
		Reason: fmt.Sprintf("exceeds maximum length of %d", maxLen),
	}
}
