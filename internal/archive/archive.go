// Package archive assembles and disassembles the export bundle.
//
// A bundle is a single zip holding index.html at the root, manifest.json at
// the root, and every fetched asset under images/. The inverse operation
// recovers just the images/ entries so a retry run never re-fetches assets
// that already succeeded.
package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmarche/bundle-api/internal/domain"
)

// Manifest describes every asset's outcome for a completed or in-flight
// export. It is both an API response body and the manifest.json bundled
// inside the archive.
type Manifest struct {
	ExportID  string               `json:"export_id"`
	Mode      domain.CleanMode     `json:"mode"`
	CreatedAt time.Time            `json:"created_at"`
	Images    []domain.AssetRecord `json:"images"`
	Stats     domain.Stats         `json:"stats"`
}

// BuildManifest snapshots a task's asset state into a manifest.
func BuildManifest(task *domain.ExportTask) Manifest {
	images := make([]domain.AssetRecord, len(task.Assets))
	copy(images, task.Assets)

	return Manifest{
		ExportID:  task.ID,
		Mode:      task.Mode,
		CreatedAt: task.CreatedAt,
		Images:    images,
		Stats:     task.Stats,
	}
}

// Build writes the bundle zip to archivePath: the rendered document as
// index.html, the manifest as manifest.json, and every regular file in
// imagesDir under images/. imagesDir may be empty or absent; the archive is
// still produced with zero asset entries.
func Build(archivePath, renderedDoc string, manifest Manifest, imagesDir string) (err error) {
	zipFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := zipFile.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(zipFile)
	defer func() {
		if cerr := zw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to finalize archive: %w", cerr)
		}
	}()

	w, err := zw.Create("index.html")
	if err != nil {
		return fmt.Errorf("failed to add index.html: %w", err)
	}
	if _, err := io.WriteString(w, renderedDoc); err != nil {
		return fmt.Errorf("failed to write index.html: %w", err)
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	w, err = zw.Create("manifest.json")
	if err != nil {
		return fmt.Errorf("failed to add manifest.json: %w", err)
	}
	if _, err := w.Write(manifestJSON); err != nil {
		return fmt.Errorf("failed to write manifest.json: %w", err)
	}

	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read images directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addImage(zw, filepath.Join(imagesDir, entry.Name()), entry.Name()); err != nil {
			return err
		}
	}

	return nil
}

// addImage copies one asset file into the archive under images/.
func addImage(zw *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open asset %s: %w", name, err)
	}
	defer func() { _ = file.Close() }()

	w, err := zw.Create("images/" + name)
	if err != nil {
		return fmt.Errorf("failed to add asset %s: %w", name, err)
	}
	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("failed to write asset %s: %w", name, err)
	}
	return nil
}

// ExtractImages recovers only the images/ entries of an existing archive
// into destDir/images, preserving filenames. An archive with zero asset
// entries is fine; the images directory is created regardless.
func ExtractImages(archivePath, destDir string) error {
	imagesDir := filepath.Join(destDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create images directory: %w", err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, entry := range zr.File {
		if !strings.HasPrefix(entry.Name, "images/") || strings.HasSuffix(entry.Name, "/") {
			continue
		}
		// Flatten to the base name; archive paths are never trusted.
		target := filepath.Join(imagesDir, filepath.Base(entry.Name))
		if err := extractFile(entry, target); err != nil {
			return err
		}
	}

	return nil
}

// extractFile writes one archive entry to the given path.
func extractFile(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", entry.Name, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", entry.Name, err)
	}
	return nil
}
