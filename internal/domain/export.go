package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an export task
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusExpired    TaskStatus = "expired"
)

// AssetStatus represents the resolution state of a single asset
type AssetStatus string

// Possible asset status values
const (
	AssetStatusPending     AssetStatus = "pending"
	AssetStatusDownloading AssetStatus = "downloading"
	AssetStatusDownloaded  AssetStatus = "downloaded"
	AssetStatusFailed      AssetStatus = "failed"
)

// CleanMode identifies which sanitization profile produced the input document.
// The document arrives pre-cleaned; the mode is carried through to the manifest.
type CleanMode string

const (
	CleanModeSafe       CleanMode = "safe"
	CleanModeAggressive CleanMode = "aggressive"
)

// FailurePolicy decides what happens to a reference whose asset failed to fetch.
type FailurePolicy string

const (
	// FailurePolicyKeepRemote leaves the original remote reference in place.
	FailurePolicyKeepRemote FailurePolicy = "keep_remote"

	// FailurePolicyRemove strips the reference from the rewritten document.
	FailurePolicyRemove FailurePolicy = "remove"
)

// Common validation errors for ExportTask
var (
	ErrEmptyTaskID      = errors.New("export task ID cannot be empty")
	ErrInvalidCleanMode = errors.New("invalid clean mode")
	ErrInvalidPolicy    = errors.New("invalid failed-asset policy")
	ErrZeroExpiry       = errors.New("export task expiry cannot be zero")
)

// Options control how a single export run treats assets.
type Options struct {
	DownloadAssets bool          `json:"download_images"`
	OnFetchFailure FailurePolicy `json:"rewrite_failed_images"`
}

// DefaultOptions returns the option set used when the caller supplies none.
func DefaultOptions() Options {
	return Options{
		DownloadAssets: true,
		OnFetchFailure: FailurePolicyKeepRemote,
	}
}

// AssetRecord tracks one discovered image through fetch, rename, and rewrite.
// The source reference acts as the asset's identity key within its task.
type AssetRecord struct {
	SourceRef string      `json:"url"`
	Status    AssetStatus `json:"status"`
	LocalName string      `json:"filename,omitempty"`
	Size      int64       `json:"size,omitempty"`
	Error     string      `json:"error,omitempty"`
	Attempts  int         `json:"retry_count"`

	// Ordinal is the 1-based position used to name the asset's local file.
	// It is fixed at extraction time and never recomputed, so retry runs
	// reuse the same filename slot. Not part of the manifest schema.
	Ordinal int `json:"-"`
}

// IsInline reports whether the asset's source is an inline-encoded payload
// rather than a remote URL.
func (a *AssetRecord) IsInline() bool {
	return strings.HasPrefix(a.SourceRef, "data:")
}

// Progress tracks completion of the active run. Counters reset at the start
// of each run (initial export or retry) and only ever increase during one.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Stats aggregates asset outcomes across the whole task.
type Stats struct {
	ImagesFound      int   `json:"images_found"`
	ImagesDownloaded int   `json:"images_downloaded"`
	ImagesFailed     int   `json:"images_failed"`
	TotalSize        int64 `json:"total_size"`
}

// Links holds the navigable URLs for a task.
type Links struct {
	Self     string `json:"self"`
	Archive  string `json:"archive"`
	Manifest string `json:"manifest"`
}

// ExportTask is one end-to-end request to turn a document into an offline
// bundle. The store exclusively owns every instance; the orchestrator mutates
// a task in place while a run is active.
type ExportTask struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Progress  Progress   `json:"progress"`
	Stats     Stats      `json:"stats"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Links     Links      `json:"links"`
	Mode      CleanMode  `json:"mode"`

	// Document is the original input markup, immutable after creation.
	Document string `json:"-"`

	// RenderedDocument is the rewritten markup, present once a run has
	// produced it and overwritten by each subsequent retry.
	RenderedDocument string `json:"-"`

	Assets       []AssetRecord `json:"images"`
	Options      Options       `json:"options"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// NewExportID generates a short opaque task identifier.
func NewExportID() string {
	return "exp_" + uuid.New().String()[:8]
}

// NewExportTask creates a queued task for the given document. The expiry is
// fixed at creation time and never extended.
func NewExportTask(document string, mode CleanMode, opts Options, ttl time.Duration) (*ExportTask, error) {
	id := NewExportID()
	now := time.Now().UTC()

	task := &ExportTask{
		ID:        id,
		Status:    TaskStatusQueued,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Mode:      mode,
		Document:  document,
		Options:   opts,
		Links: Links{
			Self:     "/api/v1/exports/" + id,
			Archive:  "/api/v1/exports/" + id + "/archive",
			Manifest: "/api/v1/exports/" + id + "/manifest",
		},
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the ExportTask has valid data.
// Returns an error if any field fails validation.
func (t *ExportTask) Validate() error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}

	if t.Document == "" {
		return ErrEmptyDocument
	}

	if !isValidCleanMode(t.Mode) {
		return ErrInvalidCleanMode
	}

	if !isValidFailurePolicy(t.Options.OnFetchFailure) {
		return ErrInvalidPolicy
	}

	if t.ExpiresAt.IsZero() {
		return ErrZeroExpiry
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	for i := range t.Assets {
		if !isValidAssetStatus(t.Assets[i].Status) {
			return ErrInvalidAssetStatus
		}
	}

	return nil
}

// IsExpired reports whether the task is past its expiry at the given instant.
func (t *ExportTask) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// FailedAssetIndexes returns the indexes of all assets currently marked
// Failed, in ascending order.
func (t *ExportTask) FailedAssetIndexes() []int {
	var failed []int
	for i := range t.Assets {
		if t.Assets[i].Status == AssetStatusFailed {
			failed = append(failed, i)
		}
	}
	return failed
}

// AssetIndexByRef resolves an asset by its exact original source reference.
// Returns -1 when no asset matches.
func (t *ExportTask) AssetIndexByRef(ref string) int {
	for i := range t.Assets {
		if t.Assets[i].SourceRef == ref {
			return i
		}
	}
	return -1
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusExpired:
		return true
	default:
		return false
	}
}

// isValidAssetStatus checks if the given status is a valid AssetStatus.
func isValidAssetStatus(status AssetStatus) bool {
	switch status {
	case AssetStatusPending, AssetStatusDownloading, AssetStatusDownloaded,
		AssetStatusFailed:
		return true
	default:
		return false
	}
}

// isValidCleanMode checks if the given mode is a valid CleanMode.
func isValidCleanMode(mode CleanMode) bool {
	switch mode {
	case CleanModeSafe, CleanModeAggressive:
		return true
	default:
		return false
	}
}

// isValidFailurePolicy checks if the given policy is a valid FailurePolicy.
func isValidFailurePolicy(policy FailurePolicy) bool {
	switch policy {
	case FailurePolicyKeepRemote, FailurePolicyRemove:
		return true
	default:
		return false
	}
}
