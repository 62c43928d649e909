package archive

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarche/bundle-api/internal/domain"
)

func readEntry(t *testing.T, zr *zip.ReadCloser, name string) []byte {
	t.Helper()

	for _, entry := range zr.File {
		if entry.Name != name {
			continue
		}
		src, err := entry.Open()
		require.NoError(t, err)
		defer func() { _ = src.Close() }()

		data, err := io.ReadAll(src)
		require.NoError(t, err)
		return data
	}

	t.Fatalf("archive entry %q not found", name)
	return nil
}

func TestBuildAndExtractRoundTrip(t *testing.T) {
	t.Parallel()

	imagesDir := filepath.Join(t.TempDir(), "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))

	first := []byte{0x89, 0x50, 0x4e, 0x47, 0x01}
	second := []byte("GIF89a-body")
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "01.png"), first, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(imagesDir, "02.gif"), second, 0o644))

	manifest := Manifest{
		ExportID:  "exp_ab12cd34",
		Mode:      domain.CleanModeSafe,
		CreatedAt: time.Now().UTC(),
		Images: []domain.AssetRecord{
			{SourceRef: "https://a.example.com/1.png", Status: domain.AssetStatusDownloaded, LocalName: "images/01.png"},
		},
		Stats: domain.Stats{ImagesFound: 1, ImagesDownloaded: 1},
	}

	archivePath := filepath.Join(t.TempDir(), "exp_ab12cd34.zip")
	require.NoError(t, Build(archivePath, "<html>doc</html>", manifest, imagesDir))

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	assert.Equal(t, "<html>doc</html>", string(readEntry(t, zr, "index.html")))
	assert.Equal(t, first, readEntry(t, zr, "images/01.png"))
	assert.Equal(t, second, readEntry(t, zr, "images/02.gif"))

	var decoded Manifest
	require.NoError(t, json.Unmarshal(readEntry(t, zr, "manifest.json"), &decoded))
	assert.Equal(t, "exp_ab12cd34", decoded.ExportID)
	assert.Equal(t, domain.CleanModeSafe, decoded.Mode)
	require.Len(t, decoded.Images, 1)
	assert.Equal(t, "images/01.png", decoded.Images[0].LocalName)
	assert.Equal(t, 1, decoded.Stats.ImagesDownloaded)

	// Extraction recovers the asset bytes unchanged.
	destDir := t.TempDir()
	require.NoError(t, ExtractImages(archivePath, destDir))

	got, err := os.ReadFile(filepath.Join(destDir, "images", "01.png"))
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = os.ReadFile(filepath.Join(destDir, "images", "02.gif"))
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// Document and manifest entries stay out of the images directory.
	entries, err := os.ReadDir(filepath.Join(destDir, "images"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBuildWithoutImagesDir(t *testing.T) {
	t.Parallel()

	archivePath := filepath.Join(t.TempDir(), "empty.zip")
	manifest := Manifest{ExportID: "exp_00000000", Mode: domain.CleanModeAggressive}

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	require.NoError(t, Build(archivePath, "<p>text only</p>", manifest, missing))

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	assert.Len(t, zr.File, 2)
	assert.Equal(t, "<p>text only</p>", string(readEntry(t, zr, "index.html")))

	// Extracting a zero-asset archive still creates the images directory.
	destDir := t.TempDir()
	require.NoError(t, ExtractImages(archivePath, destDir))

	info, err := os.Stat(filepath.Join(destDir, "images"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestExtractImagesMissingArchive(t *testing.T) {
	t.Parallel()

	err := ExtractImages(filepath.Join(t.TempDir(), "nope.zip"), t.TempDir())
	assert.Error(t, err)
}

func TestBuildManifestCopiesAssets(t *testing.T) {
	t.Parallel()

	task := &domain.ExportTask{
		ID:   "exp_deadbeef",
		Mode: domain.CleanModeSafe,
		Assets: []domain.AssetRecord{
			{SourceRef: "https://a.example.com/1.png", Status: domain.AssetStatusFailed, Error: "HTTP 404"},
		},
		Stats: domain.Stats{ImagesFound: 1, ImagesFailed: 1},
	}

	manifest := BuildManifest(task)
	manifest.Images[0].Error = "mutated"

	assert.Equal(t, "HTTP 404", task.Assets[0].Error)
	assert.Equal(t, 1, manifest.Stats.ImagesFailed)
}
