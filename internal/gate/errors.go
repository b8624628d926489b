package gate

import "errors"

var (
	// ErrNotFound is returned when an operation references a record id
	// with no corresponding creation event.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned when the caller lacks the ownership,
	// role, or grant required for the requested operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput is returned for malformed identifiers or empty
	// required fields. Delivery layers may tighten this validation.
	ErrInvalidInput = errors.New("invalid input")
)
