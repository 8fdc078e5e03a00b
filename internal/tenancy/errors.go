package tenancy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by registry lookups for unknown slugs.
	ErrNotFound = errors.New("tenant not found")

	// ErrConflict is returned when a slug or namespace already exists.
	ErrConflict = errors.New("tenant already exists")

	// ErrInvalidTransition marks an illegal status change, e.g. any
	// transition out of deleted.
	ErrInvalidTransition = errors.New("invalid tenant status transition")

	// ErrUnresolvedTenant means a non-exempt request carried no tenant hint.
	ErrUnresolvedTenant = errors.New("no tenant identifier provided")

	// ErrUnknownTenant means a hint was present but matched no tenant.
	ErrUnknownTenant = errors.New("unknown tenant")
)

// ValidationError reports a malformed slug or namespace name.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InactiveError blocks access to a tenant whose status is not active. The
// status is carried so callers can distinguish suspended from deleted.
type InactiveError struct {
	Slug   string
	Status Status
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("tenant %s is not active (status: %s)", e.Slug, e.Status)
}
