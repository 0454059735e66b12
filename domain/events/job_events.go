package events

import (
	"time"

	"spscan/domain/jobs"
)

// JobProgressEvent represents a progress update from a running job
type JobProgressEvent struct {
	Job       *jobs.Job
	Timestamp time.Time
}

// JobCompletedEvent represents a job that has completed successfully
type JobCompletedEvent struct {
	Job       *jobs.Job
	Timestamp time.Time
}

// JobFailedEvent represents a job that has failed
type JobFailedEvent struct {
	Job       *jobs.Job
	Error     string
	Timestamp time.Time
}

// JobCancelledEvent represents a job that was cancelled
type JobCancelledEvent struct {
	Job       *jobs.Job
	Timestamp time.Time
}

// SiteScanCompletedEvent represents completion of any scan on a site
type SiteScanCompletedEvent struct {
	SiteURL   string
	ReportID  string
	Job       *jobs.Job
	Timestamp time.Time
}
