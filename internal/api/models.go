package api

import (
	"time"

	"github.com/tmarche/bundle-api/internal/domain"
)

// Common request/response structures

// CreateExportRequest defines the payload for the export creation endpoint.
// The document arrives pre-cleaned; mode records which sanitization profile
// produced it.
type CreateExportRequest struct {
	HTML    string                `json:"html"    validate:"required,min=1"`
	Mode    string                `json:"mode"    validate:"omitempty,oneof=safe aggressive"`
	Options *ExportOptionsRequest `json:"options" validate:"omitempty"`
}

// ExportOptionsRequest overrides the default export options.
type ExportOptionsRequest struct {
	DownloadImages      *bool  `json:"download_images"`
	RewriteFailedImages string `json:"rewrite_failed_images" validate:"omitempty,oneof=keep_remote remove"`
}

// RetryImageRequest defines the payload for the single-asset retry endpoint.
// The URL must match an asset's original source reference exactly.
type RetryImageRequest struct {
	URL string `json:"url" validate:"required,min=1"`
}

// TaskSummaryResponse is the creation response: identity, lifecycle
// timestamps, and navigation links.
type TaskSummaryResponse struct {
	ID        string            `json:"id"`
	Status    domain.TaskStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Links     domain.Links      `json:"links"`
}

// TaskStatusResponse is the polling response. Progress appears only while
// processing, stats while processing or completed, and the error only when
// the task failed.
type TaskStatusResponse struct {
	ID        string            `json:"id"`
	Status    domain.TaskStatus `json:"status"`
	Progress  *domain.Progress  `json:"progress"`
	Stats     *domain.Stats     `json:"stats"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Links     domain.Links      `json:"links"`
	Error     *string           `json:"error"`
}

// HealthResponse reports process health for load balancers and probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}

// taskToSummary converts a task snapshot to the creation response shape.
func taskToSummary(task domain.ExportTask) TaskSummaryResponse {
	return TaskSummaryResponse{
		ID:        task.ID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt,
		ExpiresAt: task.ExpiresAt,
		Links:     task.Links,
	}
}

// taskToStatus converts a task snapshot to the polling response shape,
// applying the per-status field visibility rules.
func taskToStatus(task domain.ExportTask) TaskStatusResponse {
	resp := TaskStatusResponse{
		ID:        task.ID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt,
		ExpiresAt: task.ExpiresAt,
		Links:     task.Links,
	}

	if task.Status == domain.TaskStatusProcessing {
		progress := task.Progress
		resp.Progress = &progress
	}
	if task.Status == domain.TaskStatusProcessing || task.Status == domain.TaskStatusCompleted {
		stats := task.Stats
		resp.Stats = &stats
	}
	if task.Status == domain.TaskStatusFailed {
		errMsg := task.ErrorMessage
		resp.Error = &errMsg
	}

	return resp
}

// optionsFromRequest folds request overrides onto the default options.
func optionsFromRequest(req *ExportOptionsRequest) domain.Options {
	opts := domain.DefaultOptions()
	if req == nil {
		return opts
	}
	if req.DownloadImages != nil {
		opts.DownloadAssets = *req.DownloadImages
	}
	if req.RewriteFailedImages != "" {
		opts.OnFetchFailure = domain.FailurePolicy(req.RewriteFailedImages)
	}
	return opts
}
