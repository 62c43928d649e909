package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tmarche/bundle-api/internal/domain"
)

// MemoryStore is the in-process TaskStore. Task state is deliberately not
// durable: a process restart loses every task, and only archive files
// survive until the next sweep.
type MemoryStore struct {
	mu          sync.Mutex
	tasks       map[string]*domain.ExportTask
	idempotency map[string]string
	logger      *slog.Logger
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*domain.ExportTask),
		idempotency: make(map[string]string),
		logger:      logger,
	}
}

// Put registers a newly created task.
func (s *MemoryStore) Put(task *domain.ExportTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

// Snapshot returns a copy of the task's current state, applying lazy expiry.
func (s *MemoryStore) Snapshot(id string) (domain.ExportTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return domain.ExportTask{}, ErrTaskNotFound
	}
	s.expireLocked(task)

	return snapshotLocked(task), nil
}

// Update runs fn against the stored task under the store's lock.
func (s *MemoryStore) Update(id string, fn func(task *domain.ExportTask) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	s.expireLocked(task)

	return fn(task)
}

// Delete removes the task and any idempotency key pointing at it.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	s.dropKeysLocked(map[string]struct{}{id: {}})
	return nil
}

// Sweep removes every expired task and its idempotency keys. The returned
// IDs let the caller remove archives and working directories from disk.
func (s *MemoryStore) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]struct{})
	var removedIDs []string
	for id, task := range s.tasks {
		if task.IsExpired(now) {
			delete(s.tasks, id)
			removed[id] = struct{}{}
			removedIDs = append(removedIDs, id)
		}
	}

	if len(removed) > 0 {
		s.dropKeysLocked(removed)
		s.logger.Debug("swept expired export tasks", "count", len(removed))
	}

	return removedIDs
}

// ResolveIdempotency returns the live task mapped to the key, purging stale
// mappings on miss.
func (s *MemoryStore) ResolveIdempotency(key string, now time.Time) (domain.ExportTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskID, ok := s.idempotency[key]
	if !ok {
		return domain.ExportTask{}, false
	}

	task, ok := s.tasks[taskID]
	if !ok || task.IsExpired(now) {
		delete(s.idempotency, key)
		return domain.ExportTask{}, false
	}

	return snapshotLocked(task), true
}

// RecordIdempotency maps a caller-supplied key to a task ID.
func (s *MemoryStore) RecordIdempotency(key, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[key] = taskID
}

// expireLocked applies the lazy Expired transition. Caller holds the lock.
func (s *MemoryStore) expireLocked(task *domain.ExportTask) {
	if task.Status != domain.TaskStatusExpired && task.IsExpired(time.Now().UTC()) {
		task.Status = domain.TaskStatusExpired
	}
}

// dropKeysLocked removes every idempotency key whose task ID is in removed.
// Caller holds the lock.
func (s *MemoryStore) dropKeysLocked(removed map[string]struct{}) {
	for key, taskID := range s.idempotency {
		if _, ok := removed[taskID]; ok {
			delete(s.idempotency, key)
		}
	}
}

// snapshotLocked copies a task, including its asset slice, so callers never
// observe in-flight mutation. Caller holds the lock.
func snapshotLocked(task *domain.ExportTask) domain.ExportTask {
	copied := *task
	copied.Assets = make([]domain.AssetRecord, len(task.Assets))
	copy(copied.Assets, task.Assets)
	return copied
}
