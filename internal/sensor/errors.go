package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an ingested reading is malformed.
	ErrValidation = errors.New("invalid reading")
	// ErrNotFound is returned when no readings exist for a sensor.
	ErrNotFound = errors.New("no readings for sensor")
	// ErrAuth is returned when an ingestion credential does not match.
	ErrAuth = errors.New("invalid credentials")
	// ErrStore is returned when the raw store fails a query or insert.
	ErrStore = errors.New("store failure")
	// ErrUnsupported is returned when the store lacks a capability an operation needs.
	ErrUnsupported = errors.New("operation not supported by store")
)

// ValidationError describes why one element of an ingestion batch was rejected.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reading %d: %s %s", e.Index, e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
