package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tmarche/bundle-api/internal/archive"
	"github.com/tmarche/bundle-api/internal/config"
	"github.com/tmarche/bundle-api/internal/domain"
	"github.com/tmarche/bundle-api/internal/extract"
	"github.com/tmarche/bundle-api/internal/fetch"
	"github.com/tmarche/bundle-api/internal/rewrite"
	"github.com/tmarche/bundle-api/internal/store"
	"github.com/tmarche/bundle-api/internal/task"
)

// ExportService drives export tasks end to end: creation with idempotent
// dedup, the full background processing run, selective retry, and artifact
// retrieval. At most one run mutates a given task at a time; the status
// checks at each entry point act as the admission gate.
type ExportService struct {
	store   store.TaskStore
	fetcher *fetch.Fetcher
	runner  *task.Runner
	ws      *Workspace
	cfg     config.ExportConfig
	logger  *slog.Logger
}

// NewExportService creates the export orchestration service.
func NewExportService(
	taskStore store.TaskStore,
	fetcher *fetch.Fetcher,
	runner *task.Runner,
	ws *Workspace,
	cfg config.ExportConfig,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		store:   taskStore,
		fetcher: fetcher,
		runner:  runner,
		ws:      ws,
		cfg:     cfg,
		logger:  logger.With("component", "export_service"),
	}
}

// Create registers a new export task and queues its processing run.
//
// The document size ceiling is enforced before anything else; a document of
// exactly the ceiling passes, one byte over is rejected and no task exists
// afterwards. Creation also runs the opportunistic expiry sweep. When the
// idempotency key maps to a live task, that task is returned instead and the
// second return value is true.
func (s *ExportService) Create(
	document string,
	mode domain.CleanMode,
	opts domain.Options,
	idempotencyKey string,
) (domain.ExportTask, bool, error) {
	if len(document) > s.cfg.MaxDocumentBytes {
		return domain.ExportTask{}, false, fmt.Errorf(
			"%w: limit %d bytes", domain.ErrDocumentTooLarge, s.cfg.MaxDocumentBytes)
	}

	now := time.Now().UTC()

	// Opportunistic sweep: expired tasks, their artifacts, and any
	// idempotency keys pointing at them go away on every creation.
	for _, id := range s.store.Sweep(now) {
		s.ws.RemoveAll(id)
	}

	if idempotencyKey != "" {
		if existing, ok := s.store.ResolveIdempotency(idempotencyKey, now); ok {
			s.logger.Debug("idempotency key hit, returning existing task",
				"task_id", existing.ID)
			return existing, true, nil
		}
	}

	exportTask, err := domain.NewExportTask(document, mode, opts, s.cfg.TTL)
	if err != nil {
		return domain.ExportTask{}, false, err
	}

	s.store.Put(exportTask)
	if idempotencyKey != "" {
		s.store.RecordIdempotency(idempotencyKey, exportTask.ID)
	}

	// Snapshot before Submit: the moment the job is queued a worker may
	// start mutating the stored task.
	created := snapshotOf(exportTask)

	if err := s.runner.Submit(&exportJob{service: s, taskID: exportTask.ID}); err != nil {
		// The task never ran; remove it so the caller can resubmit.
		_ = s.store.Delete(exportTask.ID)
		return domain.ExportTask{}, false, fmt.Errorf("failed to queue export run: %w", err)
	}

	s.logger.Info("export task created",
		"task_id", exportTask.ID,
		"mode", exportTask.Mode,
		"document_bytes", len(document))

	return created, false, nil
}

// GetTask returns the task's current state, applying lazy expiry.
func (s *ExportService) GetTask(id string) (domain.ExportTask, error) {
	return s.store.Snapshot(id)
}

// Manifest returns the manifest of a task in Completed or Processing status.
func (s *ExportService) Manifest(id string) (archive.Manifest, error) {
	snap, err := s.store.Snapshot(id)
	if err != nil {
		return archive.Manifest{}, err
	}
	if snap.Status != domain.TaskStatusCompleted && snap.Status != domain.TaskStatusProcessing {
		return archive.Manifest{}, fmt.Errorf("%w: status %s", ErrTaskConflict, snap.Status)
	}
	return archive.BuildManifest(&snap), nil
}

// RenderedDocument returns the rewritten document of a completed task.
func (s *ExportService) RenderedDocument(id string) (string, error) {
	snap, err := s.store.Snapshot(id)
	if err != nil {
		return "", err
	}
	if snap.Status != domain.TaskStatusCompleted {
		return "", fmt.Errorf("%w: status %s", ErrTaskConflict, snap.Status)
	}
	if snap.RenderedDocument == "" {
		return "", ErrNoRenderedDocument
	}
	return snap.RenderedDocument, nil
}

// Archive returns the archive file path of a completed, unexpired task.
// Expired tasks yield ErrTaskExpired, queued/processing tasks
// ErrTaskConflict, failed tasks ErrTaskFailed, and a completed task whose
// file vanished ErrArchiveMissing.
func (s *ExportService) Archive(id string) (string, error) {
	snap, err := s.store.Snapshot(id)
	if err != nil {
		return "", err
	}

	switch snap.Status {
	case domain.TaskStatusExpired:
		return "", ErrTaskExpired
	case domain.TaskStatusQueued, domain.TaskStatusProcessing:
		return "", fmt.Errorf("%w: still processing", ErrTaskConflict)
	case domain.TaskStatusFailed:
		if snap.ErrorMessage != "" {
			return "", fmt.Errorf("%w: %s", ErrTaskFailed, snap.ErrorMessage)
		}
		return "", ErrTaskFailed
	}

	path := s.ws.ArchivePath(id)
	if _, err := os.Stat(path); err != nil {
		return "", ErrArchiveMissing
	}
	return path, nil
}

// Delete removes the task together with its archive and working directory.
func (s *ExportService) Delete(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.ws.RemoveAll(id)
	s.logger.Info("export task deleted", "task_id", id)
	return nil
}

// Process executes the full export run for a queued task: extraction, the
// concurrent fetch fan-out, rewrite, and archive build. Per-asset failures
// are recovered into the asset records; only extraction, rewrite, or
// packaging errors fail the task, and the asset/progress state observed so
// far is left as-is for diagnosis.
func (s *ExportService) Process(ctx context.Context, taskID string) error {
	err := s.store.Update(taskID, func(t *domain.ExportTask) error {
		if t.Status != domain.TaskStatusQueued {
			return fmt.Errorf("%w: cannot start run from %s", store.ErrInvalidTransition, t.Status)
		}
		t.Status = domain.TaskStatusProcessing
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.run(ctx, taskID); err != nil {
		s.failTask(taskID, err)
		return err
	}

	return s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.Status = domain.TaskStatusCompleted
		return nil
	})
}

// run is the fallible body of Process.
func (s *ExportService) run(ctx context.Context, taskID string) error {
	if err := s.ws.CreateTaskDirs(taskID); err != nil {
		return err
	}

	snap, err := s.store.Snapshot(taskID)
	if err != nil {
		return err
	}

	inline := extract.InlineRefs(snap.Document)
	remote := extract.RemoteRefs(snap.Document)
	inline, remote = extract.CapRefs(inline, remote, s.cfg.MaxAssets)
	total := len(inline) + len(remote)

	assets := make([]domain.AssetRecord, 0, total)
	for i, ref := range inline {
		assets = append(assets, domain.AssetRecord{
			SourceRef: ref,
			Status:    domain.AssetStatusPending,
			Ordinal:   i + 1,
		})
	}
	for i, ref := range remote {
		assets = append(assets, domain.AssetRecord{
			SourceRef: ref,
			Status:    domain.AssetStatusPending,
			Ordinal:   len(inline) + i + 1,
		})
	}

	err = s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.Assets = assets
		t.Progress = domain.Progress{Done: 0, Total: total}
		t.Stats = domain.Stats{ImagesFound: total}
		return nil
	})
	if err != nil {
		return err
	}

	if snap.Options.DownloadAssets && total > 0 {
		imagesDir := s.ws.ImagesDir(taskID)

		// Inline payloads resolve synchronously in extraction order.
		for i, ref := range inline {
			record := s.fetcher.DecodeInline(ref, imagesDir, i+1, total)
			s.recordResult(taskID, i, record)
		}

		// Remote fetches fan out against the shared client and are
		// gathered before the rewrite step; completion order does not
		// matter, the done counter still ends at total.
		g, gctx := errgroup.WithContext(ctx)
		for i, url := range remote {
			index := len(inline) + i
			ordinal := index + 1
			fetchURL := url
			g.Go(func() error {
				record := s.fetcher.Download(gctx, fetchURL, imagesDir, ordinal, total)
				s.recordResult(taskID, index, record)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	return s.finishRun(taskID, snap.Document)
}

// recordResult stores one asset outcome and advances progress and stats.
func (s *ExportService) recordResult(taskID string, index int, record domain.AssetRecord) {
	err := s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.Assets[index] = record
		t.Progress.Done++
		if record.Status == domain.AssetStatusDownloaded {
			t.Stats.ImagesDownloaded++
			t.Stats.TotalSize += record.Size
		} else {
			t.Stats.ImagesFailed++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to record asset result",
			"task_id", taskID, "asset_index", index, "error", err)
	}
}

// finishRun rewrites the document, builds manifest and archive, and removes
// the working directory.
func (s *ExportService) finishRun(taskID, document string) error {
	snap, err := s.store.Snapshot(taskID)
	if err != nil {
		return err
	}

	mapping := rewrite.BuildMapping(snap.Assets, snap.Options.OnFetchFailure)
	rendered := rewrite.WrapDocument(rewrite.Apply(document, mapping))

	err = s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.RenderedDocument = rendered
		return nil
	})
	if err != nil {
		return err
	}

	snap.RenderedDocument = rendered
	manifest := archive.BuildManifest(&snap)

	if err := archive.Build(s.ws.ArchivePath(taskID), rendered, manifest, s.ws.ImagesDir(taskID)); err != nil {
		return err
	}

	return s.ws.RemoveTaskDir(taskID)
}

// failTask transitions the task to Failed, capturing the error verbatim.
// Asset and progress state stay as last observed; there is no rollback.
func (s *ExportService) failTask(taskID string, cause error) {
	err := s.store.Update(taskID, func(t *domain.ExportTask) error {
		t.Status = domain.TaskStatusFailed
		t.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		s.logger.Error("failed to mark task as failed", "task_id", taskID, "error", err)
	}
}

// snapshotOf copies a task the service itself just built. Only safe while
// the task's run is not yet queued; afterwards reads go through the store.
func snapshotOf(t *domain.ExportTask) domain.ExportTask {
	copied := *t
	copied.Assets = append([]domain.AssetRecord(nil), t.Assets...)
	return copied
}
