package api

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/tmarche/bundle-api/internal/api/shared"
	"github.com/tmarche/bundle-api/internal/fetch"
)

// ProxyHandler downloads a single remote image on the caller's behalf,
// bypassing browser CORS and hotlink restrictions. It shares the fetcher's
// HTTP client so timeout policy stays in one place.
type ProxyHandler struct {
	client *http.Client
	logger *slog.Logger
}

// NewProxyHandler creates a new ProxyHandler
func NewProxyHandler(client *http.Client, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		client: client,
		logger: logger.With("component", "proxy_handler"),
	}
}

// ProxyImage handles GET /api/v1/proxy-image?url= requests
func (h *ProxyHandler) ProxyImage(w http.ResponseWriter, r *http.Request) {
	targetURL := r.URL.Query().Get("url")
	if targetURL == "" {
		shared.RespondWithProblem(w, r, http.StatusBadRequest,
			"Bad Request", "Missing 'url' parameter", problemBase+"bad-request")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, targetURL, nil)
	if err != nil {
		shared.RespondWithProblem(w, r, http.StatusBadRequest,
			"Bad Request", "Invalid 'url' parameter", problemBase+"bad-request")
		return
	}
	fetch.BrowserHeaders(req, targetURL)

	resp, err := h.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			shared.RespondWithProblem(w, r, http.StatusGatewayTimeout,
				"Gateway Timeout", "Image download timeout", problemBase+"timeout")
			return
		}
		shared.RespondWithProblem(w, r, http.StatusBadGateway,
			"Bad Gateway", fmt.Sprintf("Failed to download image: %v", err),
			problemBase+"download-failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		shared.RespondWithProblem(w, r, http.StatusBadGateway,
			"Bad Gateway", fmt.Sprintf("Failed to download image: HTTP %d", resp.StatusCode),
			problemBase+"download-failed")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	// Filename derives from a URL hash; the proxy has no task ordinal.
	urlHash := md5.Sum([]byte(targetURL))
	filename := "image_" + hex.EncodeToString(urlHash[:])[:8] + fetch.ExtensionFor(targetURL, contentType)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Debug("failed to stream proxied image", "url", targetURL, "error", err)
	}
}
