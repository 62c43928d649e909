package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiMiddleware "github.com/tmarche/bundle-api/internal/api/middleware"
	"github.com/tmarche/bundle-api/internal/api/shared"
	"github.com/tmarche/bundle-api/internal/config"
	"github.com/tmarche/bundle-api/internal/fetch"
	"github.com/tmarche/bundle-api/internal/service"
	"github.com/tmarche/bundle-api/internal/store"
	"github.com/tmarche/bundle-api/internal/task"
)

type apiHarness struct {
	router  http.Handler
	exports *service.ExportService
}

// newAPIHarness builds the full route tree against an unstarted runner so
// tests control task state transitions explicitly.
func newAPIHarness(t *testing.T, maxDocumentBytes int) *apiHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ws, err := service.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	taskStore := store.NewMemoryStore(logger)
	fetcher := fetch.New(config.FetchConfig{
		Timeout:    2 * time.Second,
		MaxRetries: 0,
		RetryDelay: time.Millisecond,
	}, logger)
	runner := task.NewRunner(task.RunnerConfig{WorkerCount: 1, QueueSize: 50}, logger)

	cfg := config.ExportConfig{
		TempDir:          "unused",
		TTL:              time.Hour,
		MaxDocumentBytes: maxDocumentBytes,
		MaxAssets:        200,
		QueueSize:        50,
		WorkerCount:      1,
	}
	exports := service.NewExportService(taskStore, fetcher, runner, ws, cfg, logger)

	exportHandler := NewExportHandler(exports, logger)
	proxyHandler := NewProxyHandler(fetcher.Client(), logger)
	healthHandler := NewHealthHandler()

	r := chi.NewRouter()
	r.Use(apiMiddleware.TraceMiddleware)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Route("/exports", func(r chi.Router) {
			r.Post("/", exportHandler.Create)
			r.Get("/{id}", exportHandler.GetStatus)
			r.Get("/{id}/archive", exportHandler.GetArchive)
			r.Get("/{id}/manifest", exportHandler.GetManifest)
			r.Get("/{id}/document", exportHandler.GetDocument)
			r.Post("/{id}/retry-images", exportHandler.RetryImages)
			r.Post("/{id}/retry-image", exportHandler.RetryImage)
			r.Delete("/{id}", exportHandler.Delete)
		})

		r.Get("/proxy-image", proxyHandler.ProxyImage)
	})

	return &apiHarness{router: r, exports: exports}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// createCompleted creates a task and drives its run synchronously.
func (h *apiHarness) createCompleted(t *testing.T, document string) string {
	t.Helper()

	rec := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: document}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var summary TaskSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.NoError(t, h.exports.Process(context.Background(), summary.ID))
	return summary.ID
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) shared.ProblemDetail {
	t.Helper()

	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem shared.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestCreateExportAccepted(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	rec := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: "<p>doc</p>"}, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var summary TaskSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	assert.True(t, strings.HasPrefix(summary.ID, "exp_"))
	assert.Equal(t, "queued", string(summary.Status))
	assert.Equal(t, "/api/v1/exports/"+summary.ID, summary.Links.Self)
	assert.Equal(t, summary.Links.Self, rec.Header().Get("Location"))
	assert.True(t, summary.ExpiresAt.After(summary.CreatedAt))
}

func TestCreateExportIdempotencyHeader(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	header := map[string]string{IdempotencyKeyHeader: "client-key-1"}

	first := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: "<p>doc</p>"}, header)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: "<p>doc</p>"}, header)
	require.Equal(t, http.StatusAccepted, second.Code)

	var a, b TaskSummaryResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
}

func TestCreateExportValidation(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)

	// Missing document.
	rec := h.do(t, http.MethodPost, "/api/v1/exports/", map[string]string{"mode": "safe"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "Bad Request", problem.Title)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.NotEmpty(t, problem.TraceID)

	// Unknown mode value.
	rec = h.do(t, http.MethodPost, "/api/v1/exports/", map[string]string{"html": "<p>x</p>", "mode": "sloppy"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown top-level field.
	rec = h.do(t, http.MethodPost, "/api/v1/exports/", map[string]string{"html": "<p>x</p>", "bogus": "y"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateExportSizeCeiling(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 16)

	atLimit := strings.Repeat("a", 16)
	rec := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: atLimit}, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: atLimit + "a"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	problem := decodeProblem(t, rec)
	assert.Equal(t, "Payload Too Large", problem.Title)
	assert.Contains(t, problem.Detail, "limit 16 bytes")
}

func TestGetStatusNotFound(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	rec := h.do(t, http.MethodGet, "/api/v1/exports/exp_missing1", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "Not Found", problem.Title)
	assert.Equal(t, http.StatusNotFound, problem.Status)
	assert.Equal(t, problemBase+"not-found", problem.Type)
}

func TestGetStatusFieldVisibility(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)

	rec := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: "<p>doc</p>"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var summary TaskSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	// Queued: neither progress nor stats.
	rec = h.do(t, http.MethodGet, "/api/v1/exports/"+summary.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status TaskStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Nil(t, status.Progress)
	assert.Nil(t, status.Stats)
	assert.Nil(t, status.Error)

	// Completed: stats only.
	require.NoError(t, h.exports.Process(context.Background(), summary.ID))
	rec = h.do(t, http.MethodGet, "/api/v1/exports/"+summary.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "completed", string(status.Status))
	assert.Nil(t, status.Progress)
	require.NotNil(t, status.Stats)
	assert.Equal(t, 0, status.Stats.ImagesFound)
	assert.Nil(t, status.Error)
}

func TestGetArchive(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	id := h.createCompleted(t, "<p>doc</p>")

	rec := h.do(t, http.MethodGet, "/api/v1/exports/"+id+"/archive", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "bundle-"+id+".zip")
	// Zip magic bytes.
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestGetArchiveConflictWhileQueued(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)

	rec := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: "<p>doc</p>"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var summary TaskSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	rec = h.do(t, http.MethodGet, "/api/v1/exports/"+summary.ID+"/archive", nil, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "Conflict", problem.Title)
}

func TestGetManifest(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	id := h.createCompleted(t, "<p>doc</p>")

	rec := h.do(t, http.MethodGet, "/api/v1/exports/"+id+"/manifest", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var manifest map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manifest))
	assert.Equal(t, id, manifest["export_id"])
	assert.Equal(t, "safe", manifest["mode"])
	assert.Contains(t, manifest, "images")
	assert.Contains(t, manifest, "stats")
}

func TestGetDocument(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	id := h.createCompleted(t, "<p>standalone</p>")

	rec := h.do(t, http.MethodGet, "/api/v1/exports/"+id+"/document", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<p>standalone</p>")
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")
}

func TestRetryImagesConflictWhileQueued(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)

	rec := h.do(t, http.MethodPost, "/api/v1/exports/", CreateExportRequest{HTML: "<p>doc</p>"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var summary TaskSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))

	rec = h.do(t, http.MethodPost, "/api/v1/exports/"+summary.ID+"/retry-images", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryImageValidation(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	id := h.createCompleted(t, "<p>doc</p>")

	rec := h.do(t, http.MethodPost, "/api/v1/exports/"+id+"/retry-image", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/exports/"+id+"/retry-image",
		RetryImageRequest{URL: "https://unknown.example.com/x.png"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteThenGet(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	id := h.createCompleted(t, "<p>doc</p>")

	rec := h.do(t, http.MethodDelete, "/api/v1/exports/"+id, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/exports/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/v1/exports/"+id, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t, 1024)
	rec := h.do(t, http.MethodGet, "/api/v1/health", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, Version, health.Version)
	assert.GreaterOrEqual(t, health.Uptime, int64(0))
}
