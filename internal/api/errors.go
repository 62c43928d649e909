package api

import (
	"errors"
	"net/http"

	"github.com/tmarche/bundle-api/internal/api/shared"
	"github.com/tmarche/bundle-api/internal/domain"
	"github.com/tmarche/bundle-api/internal/service"
	"github.com/tmarche/bundle-api/internal/store"
)

// problemBase prefixes the machine-readable problem type URIs.
const problemBase = "https://bundle-api.dev/problems/"

// HandleServiceError maps service, store, and domain errors onto RFC 7807
// problem responses. Mapping here keeps internal error types out of the
// response while letting the detail carry the underlying cause's text.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDocumentTooLarge):
		shared.RespondWithProblem(w, r, http.StatusUnprocessableEntity,
			"Payload Too Large", err.Error(), problemBase+"payload-too-large")

	case errors.Is(err, store.ErrTaskNotFound):
		shared.RespondWithProblem(w, r, http.StatusNotFound,
			"Not Found", err.Error(), problemBase+"not-found")

	case errors.Is(err, service.ErrArchiveMissing),
		errors.Is(err, service.ErrAssetNotFound),
		errors.Is(err, service.ErrNoRenderedDocument):
		shared.RespondWithProblem(w, r, http.StatusNotFound,
			"Not Found", err.Error(), problemBase+"not-found")

	case errors.Is(err, service.ErrTaskExpired):
		shared.RespondWithProblem(w, r, http.StatusGone,
			"Gone", err.Error(), problemBase+"expired")

	case errors.Is(err, service.ErrTaskConflict),
		errors.Is(err, service.ErrAssetNotFailed):
		shared.RespondWithProblem(w, r, http.StatusConflict,
			"Conflict", err.Error(), problemBase+"conflict")

	case errors.Is(err, service.ErrTaskFailed):
		shared.RespondWithProblem(w, r, http.StatusInternalServerError,
			"Export Failed", err.Error(), problemBase+"export-failed")

	default:
		shared.RespondWithProblem(w, r, http.StatusInternalServerError,
			"Internal Server Error", err.Error(), problemBase+"internal-error")
	}
}
