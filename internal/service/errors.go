// Package service implements the export orchestration: task creation, the
// full processing run, and selective asset retry.
package service

import "errors"

// Common service errors mapped to API conditions by the handlers.
var (
	// ErrTaskExpired is returned when the target task is past its expiry.
	ErrTaskExpired = errors.New("export task has expired")

	// ErrTaskConflict is returned when an operation is invalid for the
	// task's current status, e.g. downloading the archive of a task that
	// is still processing.
	ErrTaskConflict = errors.New("operation not valid for task status")

	// ErrTaskFailed is returned when the archive of a failed task is
	// requested; the task's error message carries the cause.
	ErrTaskFailed = errors.New("export task failed")

	// ErrArchiveMissing is returned when the task's archive file no longer
	// exists on disk. Distinct from a generic processing failure so retry
	// callers can tell "nothing to rebuild from" apart from "rebuild broke".
	ErrArchiveMissing = errors.New("archive file not found")

	// ErrAssetNotFound is returned when a single-asset retry names a
	// reference that no asset in the task matches.
	ErrAssetNotFound = errors.New("target asset not found")

	// ErrAssetNotFailed is returned when a single-asset retry targets an
	// asset that is not currently in failed status.
	ErrAssetNotFailed = errors.New("target asset is not in failed status")

	// ErrNoRenderedDocument is returned when a completed task has no
	// rendered document to serve.
	ErrNoRenderedDocument = errors.New("rendered document not found")
)
