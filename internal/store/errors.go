// Package store defines the authoritative registry of export task state.
package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the
	// store. This is the generic form of the entity-specific errors below.
	ErrNotFound = errors.New("entity not found")

	// ErrTaskNotFound indicates that the requested export task does not
	// exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: export task", ErrNotFound)

	// ErrInvalidTransition is returned when an update callback rejects the
	// task's current status; the task is left unmodified.
	ErrInvalidTransition = errors.New("invalid status transition")
)
