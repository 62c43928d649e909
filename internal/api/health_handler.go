package api

import (
	"net/http"
	"time"

	"github.com/tmarche/bundle-api/internal/api/shared"
)

// Version is the reported service version.
const Version = "1.0.0"

// HealthHandler reports process liveness and uptime.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now().UTC()}
}

// Health handles GET /api/v1/health requests
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}
