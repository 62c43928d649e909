// Package task provides the background job queue and worker pool that
// execute export runs off the request path.
package task

import "context"

// Job type constants
const (
	// TypeExportRun identifies a full export processing run.
	TypeExportRun = "export_run"
)

// Job represents a unit of background work to be processed
type Job interface {
	// ID returns the identifier of the export task the job belongs to
	ID() string

	// Type returns the job type identifier
	Type() string

	// Execute runs the job logic
	Execute(ctx context.Context) error
}
