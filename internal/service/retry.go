package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tmarche/bundle-api/internal/archive"
	"github.com/tmarche/bundle-api/internal/domain"
	"github.com/tmarche/bundle-api/internal/rewrite"
)

// RetryFailed re-runs fetch/decode for every currently-failed asset of a
// completed task and rebuilds the archive in place. A task with no failed
// assets is a no-op that returns the current manifest unchanged.
func (s *ExportService) RetryFailed(ctx context.Context, taskID string) (archive.Manifest, error) {
	snap, err := s.admitRetry(taskID)
	if err != nil {
		return archive.Manifest{}, err
	}

	failed := snap.FailedAssetIndexes()
	if len(failed) == 0 {
		return archive.BuildManifest(&snap), nil
	}

	return s.retry(ctx, taskID, failed)
}

// RetryOne re-runs fetch/decode for the single asset whose original source
// reference matches ref exactly. The asset must currently be failed.
func (s *ExportService) RetryOne(ctx context.Context, taskID, ref string) (archive.Manifest, error) {
	snap, err := s.admitRetry(taskID)
	if err != nil {
		return archive.Manifest{}, err
	}

	index := snap.AssetIndexByRef(ref)
	if index < 0 {
		return archive.Manifest{}, ErrAssetNotFound
	}
	if snap.Assets[index].Status != domain.AssetStatusFailed {
		return archive.Manifest{}, ErrAssetNotFailed
	}

	return s.retry(ctx, taskID, []int{index})
}

// admitRetry checks the retry entry conditions: the task exists, is not
// expired, and is in Completed status.
func (s *ExportService) admitRetry(taskID string) (domain.ExportTask, error) {
	snap, err := s.store.Snapshot(taskID)
	if err != nil {
		return domain.ExportTask{}, err
	}
	if snap.Status == domain.TaskStatusExpired {
		return domain.ExportTask{}, ErrTaskExpired
	}
	if snap.Status != domain.TaskStatusCompleted {
		return domain.ExportTask{}, fmt.Errorf("%w: status %s", ErrTaskConflict, snap.Status)
	}
	return snap, nil
}

// retry re-fetches the targeted asset indexes and rebuilds every artifact.
//
// Unlike the full run, fetches are awaited one at a time in ascending index
// order, keeping the progress counter deterministic. Previously downloaded
// assets are restored from the existing archive rather than re-fetched. A
// retry that itself throws transitions the task to Failed; a retried asset
// that merely fails again leaves the task Completed with the asset still
// marked failed.
func (s *ExportService) retry(ctx context.Context, taskID string, indexes []int) (archive.Manifest, error) {
	archivePath := s.ws.ArchivePath(taskID)
	if _, err := os.Stat(archivePath); err != nil {
		return archive.Manifest{}, ErrArchiveMissing
	}

	err := s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.Status = domain.TaskStatusProcessing
		t.Progress = domain.Progress{Done: 0, Total: len(indexes)}
		return nil
	})
	if err != nil {
		return archive.Manifest{}, err
	}

	manifest, err := s.runRetry(ctx, taskID, archivePath, indexes)
	if err != nil {
		s.failTask(taskID, err)
		return archive.Manifest{}, err
	}

	err = s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.Status = domain.TaskStatusCompleted
		return nil
	})
	if err != nil {
		return archive.Manifest{}, err
	}

	s.logger.Info("selective retry completed",
		"task_id", taskID, "retried_assets", len(indexes))

	return manifest, nil
}

// runRetry is the fallible body of retry.
func (s *ExportService) runRetry(ctx context.Context, taskID, archivePath string, indexes []int) (archive.Manifest, error) {
	if err := s.ws.CreateTaskDirs(taskID); err != nil {
		return archive.Manifest{}, err
	}

	// Restore already-downloaded assets so successes are never re-fetched.
	if err := archive.ExtractImages(archivePath, s.ws.TaskDir(taskID)); err != nil {
		return archive.Manifest{}, err
	}

	snap, err := s.store.Snapshot(taskID)
	if err != nil {
		return archive.Manifest{}, err
	}

	imagesDir := s.ws.ImagesDir(taskID)
	total := len(snap.Assets)

	for _, index := range indexes {
		asset := snap.Assets[index]

		var record domain.AssetRecord
		if asset.IsInline() {
			record = s.fetcher.DecodeInline(asset.SourceRef, imagesDir, asset.Ordinal, total)
		} else {
			record = s.fetcher.Download(ctx, asset.SourceRef, imagesDir, asset.Ordinal, total)
		}

		err = s.store.Update(taskID, func(t *domain.ExportTask) error {
			t.Assets[index] = record
			t.Progress.Done++
			return nil
		})
		if err != nil {
			return archive.Manifest{}, err
		}
	}

	// Sizes are recomputed from disk for every downloaded asset, not just
	// the retried ones: extraction may alter observed sizes. Stats are then
	// rebuilt from scratch over the full asset list.
	taskDir := s.ws.TaskDir(taskID)
	err = s.store.Update(taskID, func(t *domain.ExportTask) error {
		for i := range t.Assets {
			a := &t.Assets[i]
			if a.LocalName == "" {
				continue
			}
			if info, statErr := os.Stat(filepath.Join(taskDir, filepath.FromSlash(a.LocalName))); statErr == nil {
				a.Size = info.Size()
			}
		}

		stats := domain.Stats{ImagesFound: len(t.Assets)}
		for i := range t.Assets {
			switch t.Assets[i].Status {
			case domain.AssetStatusDownloaded:
				stats.ImagesDownloaded++
				stats.TotalSize += t.Assets[i].Size
			case domain.AssetStatusFailed:
				stats.ImagesFailed++
			}
		}
		t.Stats = stats
		return nil
	})
	if err != nil {
		return archive.Manifest{}, err
	}

	updated, err := s.store.Snapshot(taskID)
	if err != nil {
		return archive.Manifest{}, err
	}

	mapping := rewrite.BuildMapping(updated.Assets, updated.Options.OnFetchFailure)
	rendered := rewrite.WrapDocument(rewrite.Apply(updated.Document, mapping))

	err = s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.RenderedDocument = rendered
		return nil
	})
	if err != nil {
		return archive.Manifest{}, err
	}

	updated.RenderedDocument = rendered
	manifest := archive.BuildManifest(&updated)

	// Build to a temp file and rename so the old archive stays readable
	// until the replacement is complete.
	tmpPath := archivePath + ".tmp"
	if err := archive.Build(tmpPath, rendered, manifest, imagesDir); err != nil {
		return archive.Manifest{}, err
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return archive.Manifest{}, fmt.Errorf("failed to replace archive: %w", err)
	}

	if err := s.ws.RemoveTaskDir(taskID); err != nil {
		return archive.Manifest{}, err
	}

	return manifest, nil
}
