package service

import (
	"context"

	"github.com/tmarche/bundle-api/internal/task"
)

// exportJob adapts a full export run to the background runner's Job
// interface. Run failures are already captured on the task by Process, so
// the runner only needs to log them.
type exportJob struct {
	service *ExportService
	taskID  string
}

func (j *exportJob) ID() string {
	return j.taskID
}

func (j *exportJob) Type() string {
	return task.TypeExportRun
}

func (j *exportJob) Execute(ctx context.Context) error {
	return j.service.Process(ctx, j.taskID)
}
