package store

import (
	"time"

	"github.com/tmarche/bundle-api/internal/domain"
)

// TaskStore is the single authoritative keyed registry of export tasks.
//
// Implementations serialize all mutation and never leak internal references:
// reads hand out copies, writes run inside Update under the store's lock.
// Expiry is applied lazily on every access rather than by a background timer.
type TaskStore interface {
	// Put registers a newly created task.
	Put(task *domain.ExportTask)

	// Snapshot returns a copy of the task's current state, transitioning it
	// to Expired first when its expiry has passed.
	Snapshot(id string) (domain.ExportTask, error)

	// Update runs fn against the stored task under the store's lock. If fn
	// returns an error the task keeps any mutations fn already applied; fn
	// is expected to reject invalid states before mutating. Lazy expiry is
	// applied before fn runs.
	Update(id string, fn func(task *domain.ExportTask) error) error

	// Delete removes the task and drops any idempotency key pointing at it.
	Delete(id string) error

	// Sweep removes every task past its expiry along with its idempotency
	// keys, and returns the removed task IDs so the caller can delete the
	// tasks' on-disk artifacts.
	Sweep(now time.Time) []string

	// ResolveIdempotency returns the live task mapped to the key, if any.
	// A mapping to an expired or deleted task is purged and misses.
	ResolveIdempotency(key string, now time.Time) (domain.ExportTask, bool)

	// RecordIdempotency maps a caller-supplied key to a task ID.
	RecordIdempotency(key, taskID string)
}
