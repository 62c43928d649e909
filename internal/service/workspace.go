package service

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace lays out the on-disk artifacts of export tasks under a single
// root: one private working directory per active run and one archive file
// per completed task. Tasks never share paths, so runs never contend on
// storage.
type Workspace struct {
	root string
}

// NewWorkspace creates the workspace root if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Workspace{root: root}, nil
}

// TaskDir returns the task's private working directory.
func (w *Workspace) TaskDir(taskID string) string {
	return filepath.Join(w.root, taskID)
}

// ImagesDir returns the asset directory inside the task's working directory.
func (w *Workspace) ImagesDir(taskID string) string {
	return filepath.Join(w.root, taskID, "images")
}

// ArchivePath returns the task's archive file path, deterministic from the
// task ID.
func (w *Workspace) ArchivePath(taskID string) string {
	return filepath.Join(w.root, taskID+".zip")
}

// CreateTaskDirs creates a fresh working directory tree for a run, removing
// any leftover from a previous run first.
func (w *Workspace) CreateTaskDirs(taskID string) error {
	dir := w.TaskDir(taskID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear working directory: %w", err)
	}
	if err := os.MkdirAll(w.ImagesDir(taskID), 0o755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	return nil
}

// RemoveTaskDir deletes the task's working directory, keeping the archive.
func (w *Workspace) RemoveTaskDir(taskID string) error {
	if err := os.RemoveAll(w.TaskDir(taskID)); err != nil {
		return fmt.Errorf("failed to remove working directory: %w", err)
	}
	return nil
}

// RemoveAll deletes every artifact of a task: archive and working directory.
// Used by delete and the expiry sweep; missing files are not an error.
func (w *Workspace) RemoveAll(taskID string) {
	_ = os.Remove(w.ArchivePath(taskID))
	_ = os.RemoveAll(w.TaskDir(taskID))
}
