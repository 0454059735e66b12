package contracts

import (
	"context"
	"time"

	"spscan/domain/jobs"
	"spscan/domain/scan"
)

// JobRepository defines storage for background scan jobs. Jobs are
// operational state: the durable record of what was scanned lives in
// the scan-run history.
type JobRepository interface {
	GetJob(ctx context.Context, jobID string) (*jobs.Job, error)
	ListJobs(ctx context.Context) ([]*jobs.Job, error)
	ListJobsByType(ctx context.Context, jobType jobs.JobType) ([]*jobs.Job, error)
	ListJobsByStatus(ctx context.Context, status jobs.JobStatus) ([]*jobs.Job, error)
	ListActiveJobs(ctx context.Context) ([]*jobs.Job, error)
	CreateJob(ctx context.Context, job *jobs.Job) error
	UpdateJob(ctx context.Context, job *jobs.Job) error
}

// ScanRunRecord is one row of the durable scan-run history, written
// when a scan reaches a terminal state.
type ScanRunRecord struct {
	JobID       string
	SiteURL     string
	Scope       string
	Status      string
	ReportID    string
	Stats       scan.Stats
	StartedAt   time.Time
	CompletedAt time.Time
}

// ScanHistory records finished scans durably, surviving restarts.
type ScanHistory interface {
	// RecordRun inserts the terminal history row for a job.
	RecordRun(ctx context.Context, record *ScanRunRecord) error

	// LastCompletedScan returns the completion time of the most recent
	// successful scan of the site, or nil when it was never scanned.
	LastCompletedScan(ctx context.Context, siteURL string) (*time.Time, error)

	// ListRuns returns the most recent history rows, newest first.
	ListRuns(ctx context.Context, limit int) ([]*ScanRunRecord, error)
}
