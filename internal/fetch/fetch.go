// Package fetch resolves a single asset reference to bytes on disk.
//
// Both entry points are safe to invoke concurrently for different assets:
// each asset owns a unique ordinal for the lifetime of its task, so the
// sequential filenames never collide.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tmarche/bundle-api/internal/config"
	"github.com/tmarche/bundle-api/internal/domain"
)

// Browser-like request headers. Some image hosts reject requests that do not
// look like a page load; the Referer is set to the target URL itself.
const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHeader = "image/webp,image/apng,image/*,*/*;q=0.8"
	acceptLang   = "zh-CN,zh;q=0.9,en;q=0.8"
)

// Fetcher downloads remote assets and decodes inline payloads. A single
// Fetcher is shared by all concurrent fetches of a run.
type Fetcher struct {
	client *http.Client
	cfg    config.FetchConfig
	logger *slog.Logger
}

// New creates a Fetcher with a shared HTTP client. Redirects are followed
// (the client default); each request attempt is bounded by cfg.Timeout.
func New(cfg config.FetchConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// Client exposes the shared HTTP client for callers that need a one-off
// request with the same timeout policy, such as the image proxy.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// BrowserHeaders sets the browser-like header set on an outgoing request.
func BrowserHeaders(req *http.Request, targetURL string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLang)
	req.Header.Set("Referer", targetURL)
}

// Download fetches one remote URL into destDir using the sequential filename
// scheme and returns the resulting record. Failures are captured on the
// record, never returned: a dead asset must not abort the surrounding run.
//
// Retry policy: transport errors, timeouts, HTTP 429 and 5xx are retried up
// to cfg.MaxRetries times with linear backoff (delay * attempt number); any
// other HTTP error status fails immediately.
func (f *Fetcher) Download(ctx context.Context, url, destDir string, ordinal, total int) domain.AssetRecord {
	record := domain.AssetRecord{
		SourceRef: url,
		Status:    domain.AssetStatusDownloading,
		Ordinal:   ordinal,
	}

	var lastErr string
	attempts := 0

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		attempts++

		body, contentType, errMsg, retryable := f.attempt(ctx, url)
		if errMsg == "" {
			ext := ExtensionFor(url, contentType)
			name := localFileName(ordinal, total, ext)

			if err := os.WriteFile(filepath.Join(destDir, name), body, 0o644); err != nil {
				record.Status = domain.AssetStatusFailed
				record.Error = fmt.Sprintf("write failed: %v", err)
				record.Attempts = attempts
				return record
			}

			record.Status = domain.AssetStatusDownloaded
			record.LocalName = "images/" + name
			record.Size = int64(len(body))
			record.Attempts = attempts
			return record
		}

		lastErr = errMsg
		if !retryable {
			break
		}

		if attempt < f.cfg.MaxRetries {
			time.Sleep(f.cfg.RetryDelay * time.Duration(attempt+1))
		}
	}

	f.logger.Debug("asset download failed",
		"url", url,
		"attempts", attempts,
		"error", lastErr)

	record.Status = domain.AssetStatusFailed
	record.Error = lastErr
	record.Attempts = attempts
	return record
}

// attempt performs one GET. It returns the body and content type on success,
// or an error message and whether the failure class is retryable.
func (f *Fetcher) attempt(ctx context.Context, url string) (body []byte, contentType, errMsg string, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Sprintf("Request error: %v", err), false
	}
	BrowserHeaders(req, url)

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, "", "Download timeout", true
		}
		// DNS failures, refused connections, dropped sockets.
		return nil, "", fmt.Sprintf("Request error: %v", err), true
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("failed to close response body", "url", url, "error", cerr)
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		retryable := resp.StatusCode >= http.StatusInternalServerError ||
			resp.StatusCode == http.StatusTooManyRequests
		return nil, "", fmt.Sprintf("HTTP %d", resp.StatusCode), retryable
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Sprintf("Request error: %v", err), true
	}

	return data, resp.Header.Get("Content-Type"), "", false
}
