package application

import (
	"context"

	"spscan/domain/jobs"
)

// JobExecutor executes one job type. Implementations run the scan to
// completion, storing the outcome on the job's context before
// returning.
type JobExecutor interface {
	Execute(ctx context.Context, job *jobs.Job, progressCallback ProgressCallback) error
}

// ProgressCallback is called during job execution to report progress.
type ProgressCallback func(stage, description string, percentage, itemsDone, itemsTotal int)
