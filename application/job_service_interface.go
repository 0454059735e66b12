package application

import (
	"spscan/domain/jobs"
	"spscan/domain/scan"
)

// UpdateNotifier defines interface for update notifications.
type UpdateNotifier interface {
	NotifyUpdate()
	NotifyJobUpdate(jobID string, job *jobs.Job)
}

// JobService provides job lifecycle management for background scans.
type JobService interface {
	// StartJob creates a scan job for a validated request and begins
	// executing it asynchronously.
	StartJob(request scan.Request, siteURL string) (*jobs.Job, error)

	// Job lifecycle operations
	GetJob(jobID string) (*jobs.Job, bool)
	CancelJob(jobID string) (*jobs.Job, error)

	// Job listing and filtering
	ListAllJobs() []*jobs.Job
	ListJobsByType(jobType jobs.JobType) []*jobs.Job
	ListJobsByStatus(status jobs.JobStatus) []*jobs.Job

	// Notifications
	SetUpdateNotifier(notifier UpdateNotifier)
}
