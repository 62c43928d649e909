// Package domain defines the core export entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrEmptyDocument is returned when the submitted document is empty.
	ErrEmptyDocument = errors.New("document cannot be empty")

	// ErrDocumentTooLarge is returned when the submitted document exceeds
	// the configured byte-size ceiling. The task is never created.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")

	// ErrInvalidTaskStatus is returned when a task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidAssetStatus is returned when an asset status is not valid.
	ErrInvalidAssetStatus = errors.New("invalid asset status")
)
