// Package api implements the HTTP handlers for the export service.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tmarche/bundle-api/internal/api/shared"
	"github.com/tmarche/bundle-api/internal/domain"
	"github.com/tmarche/bundle-api/internal/service"
)

// IdempotencyKeyHeader carries the caller-supplied creation dedup token.
const IdempotencyKeyHeader = "Idempotency-Key"

// ExportHandler handles export-task-related HTTP requests
type ExportHandler struct {
	exports   *service.ExportService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(exports *service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		exports:   exports,
		validator: validator.New(),
		logger:    logger.With("component", "export_handler"),
	}
}

// Create handles POST /api/v1/exports requests.
// Processing happens asynchronously, so the response is 202 Accepted with a
// Location header pointing at the status endpoint.
func (h *ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateExportRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithProblem(w, r, http.StatusBadRequest,
			"Bad Request", "Invalid request format", problemBase+"bad-request")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithProblem(w, r, http.StatusBadRequest,
			"Bad Request", "Validation error: "+err.Error(), problemBase+"validation")
		return
	}

	mode := domain.CleanModeSafe
	if req.Mode != "" {
		mode = domain.CleanMode(req.Mode)
	}

	task, existing, err := h.exports.Create(
		req.HTML,
		mode,
		optionsFromRequest(req.Options),
		r.Header.Get(IdempotencyKeyHeader),
	)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	if existing {
		h.logger.Debug("returning deduplicated export task", "task_id", task.ID)
	}

	w.Header().Set("Location", task.Links.Self)
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToSummary(task))
}

// GetStatus handles GET /api/v1/exports/{id} requests
func (h *ExportHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	task, err := h.exports.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToStatus(task))
}

// GetArchive handles GET /api/v1/exports/{id}/archive requests, serving the
// bundle zip of a completed, unexpired task.
func (h *ExportHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	path, err := h.exports.Archive(id)
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="bundle-`+id+`.zip"`)
	http.ServeFile(w, r, path)
}

// GetManifest handles GET /api/v1/exports/{id}/manifest requests
func (h *ExportHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.exports.Manifest(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, manifest)
}

// GetDocument handles GET /api/v1/exports/{id}/document requests, returning
// the rewritten standalone HTML of a completed task.
func (h *ExportHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	rendered, err := h.exports.RenderedDocument(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(rendered)); err != nil {
		h.logger.Error("failed to write document response", "error", err)
	}
}

// RetryImages handles POST /api/v1/exports/{id}/retry-images requests,
// re-fetching every currently-failed asset and rebuilding the archive.
// With no failed assets this is a no-op returning the current manifest.
func (h *ExportHandler) RetryImages(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.exports.RetryFailed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondRetryError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, manifest)
}

// RetryImage handles POST /api/v1/exports/{id}/retry-image requests,
// re-fetching the one failed asset matching the given original reference.
func (h *ExportHandler) RetryImage(w http.ResponseWriter, r *http.Request) {
	var req RetryImageRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithProblem(w, r, http.StatusBadRequest,
			"Bad Request", "Invalid request format", problemBase+"bad-request")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithProblem(w, r, http.StatusBadRequest,
			"Bad Request", "Validation error: "+err.Error(), problemBase+"validation")
		return
	}

	manifest, err := h.exports.RetryOne(r.Context(), chi.URLParam(r, "id"), req.URL)
	if err != nil {
		h.respondRetryError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, manifest)
}

// respondRetryError maps retry failures, distinguishing a broken rebuild
// (which has already transitioned the task to Failed) from precondition
// errors.
func (h *ExportHandler) respondRetryError(w http.ResponseWriter, r *http.Request, err error) {
	if isRetryPrecondition(err) {
		HandleServiceError(w, r, err)
		return
	}

	shared.RespondWithProblem(w, r, http.StatusInternalServerError,
		"Retry Failed", err.Error(), problemBase+"retry-failed")
}

// Delete handles DELETE /api/v1/exports/{id} requests
func (h *ExportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.exports.Delete(chi.URLParam(r, "id")); err != nil {
		HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
