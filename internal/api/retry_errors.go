package api

import (
	"errors"

	"github.com/tmarche/bundle-api/internal/service"
	"github.com/tmarche/bundle-api/internal/store"
)

// isRetryPrecondition reports whether a retry error is a precondition
// failure (mapped to 404/409/410) rather than a failure of the retry run
// itself (mapped to a generic retry-failed problem).
func isRetryPrecondition(err error) bool {
	return errors.Is(err, store.ErrTaskNotFound) ||
		errors.Is(err, service.ErrTaskExpired) ||
		errors.Is(err, service.ErrTaskConflict) ||
		errors.Is(err, service.ErrArchiveMissing) ||
		errors.Is(err, service.ErrAssetNotFound) ||
		errors.Is(err, service.ErrAssetNotFailed)
}
