package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spscan/domain/contracts"
	"spscan/domain/events"
	"spscan/domain/jobs"
	"spscan/domain/scan"
	"spscan/logging"
)

// JobServiceImpl implements job orchestration: one goroutine per
// running scan, with cooperative cancellation through per-job contexts.
type JobServiceImpl struct {
	jobRepo  contracts.JobRepository
	history  contracts.ScanHistory
	registry *JobExecutorRegistry
	notifier UpdateNotifier
	eventBus events.JobEventPublisher
	logger   *logging.Logger

	// Context cancellation for running jobs
	runningJobs map[string]context.CancelFunc
	jobsMutex   sync.RWMutex
}

// NewJobService creates a new job service.
func NewJobService(
	jobRepo contracts.JobRepository,
	history contracts.ScanHistory,
	registry *JobExecutorRegistry,
	notifier UpdateNotifier,
	eventBus events.JobEventPublisher,
) JobService {
	return &JobServiceImpl{
		jobRepo:     jobRepo,
		history:     history,
		registry:    registry,
		notifier:    notifier,
		eventBus:    eventBus,
		logger:      logging.Default().WithComponent("job_service"),
		runningJobs: make(map[string]context.CancelFunc),
	}
}

// StartJob creates a scan job and starts executing it asynchronously.
// The request must already be validated.
func (s *JobServiceImpl) StartJob(request scan.Request, siteURL string) (*jobs.Job, error) {
	executor, err := s.registry.GetExecutor(jobs.JobTypeSiteScan)
	if err != nil {
		return nil, fmt.Errorf("cannot start job: %w", err)
	}

	jobFactory := &jobs.JobFactory{}
	job := jobFactory.CreateScanJob(request, siteURL)

	if err := s.jobRepo.CreateJob(context.Background(), job); err != nil {
		s.logger.Error("Failed to create job", "job_id", job.ID, "error", err)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	go s.executeJobAsync(job, executor)

	s.logger.Info("Job started", "job_id", job.ID, "site_url", siteURL, "scope", request.Scope)
	return job, nil
}

// executeJobAsync runs the job to completion in its own goroutine.
func (s *JobServiceImpl) executeJobAsync(job *jobs.Job, executor JobExecutor) {
	ctx, cancel := context.WithCancel(context.Background())

	s.jobsMutex.Lock()
	s.runningJobs[job.ID] = cancel
	s.jobsMutex.Unlock()

	defer func() {
		cancel()
		s.jobsMutex.Lock()
		delete(s.runningJobs, job.ID)
		s.jobsMutex.Unlock()
	}()

	jobLifecycle := &jobs.JobLifecycle{}
	if err := jobLifecycle.StartJob(job); err != nil {
		s.logger.Error("Failed to start job", "job_id", job.ID, "error", err)
		s.failJob(job, err.Error())
		return
	}

	if err := s.jobRepo.UpdateJob(ctx, job); err != nil {
		s.logger.Error("Failed to update job to running", "job_id", job.ID, "error", err)
	}
	s.notifyJobUpdate(job.ID, job)

	progressCallback := s.createProgressCallback(job)
	err := executor.Execute(ctx, job, progressCallback)

	switch {
	case err != nil && ctx.Err() == context.Canceled:
		// Status was already set by CancelJob; the executor has
		// discarded partial output by now.
		s.logger.Info("Job cancelled", "job_id", job.ID)

	case err != nil:
		s.logger.Error("Job execution failed", "job_id", job.ID, "error", err)
		s.failJob(job, err.Error())

	default:
		s.completeJob(job)
	}

	if updateErr := s.jobRepo.UpdateJob(context.Background(), job); updateErr != nil {
		s.logger.Error("Failed to update job final status", "job_id", job.ID, "error", updateErr)
	}
	s.recordHistory(job)
	s.notifyJobUpdate(job.ID, job)
}

// createProgressCallback wires executor progress into job state,
// persistence and live notifications.
func (s *JobServiceImpl) createProgressCallback(job *jobs.Job) ProgressCallback {
	return func(stage, description string, percentage, itemsDone, itemsTotal int) {
		job.UpdateProgress(stage, description, percentage, itemsDone, itemsTotal)

		if err := s.jobRepo.UpdateJob(context.Background(), job); err != nil {
			s.logger.Error("Failed to update job progress", "job_id", job.ID, "error", err)
		}

		if s.eventBus != nil {
			s.eventBus.PublishJobProgress(events.JobProgressEvent{Job: job, Timestamp: time.Now()})
		}
		s.notifyJobUpdate(job.ID, job)
	}
}

// completeJob marks the job successful and publishes completion events.
func (s *JobServiceImpl) completeJob(job *jobs.Job) {
	jobLifecycle := &jobs.JobLifecycle{}
	if err := jobLifecycle.CompleteJob(job); err != nil {
		s.logger.Error("Failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	s.logger.Info("Job completed", "job_id", job.ID, "report_id", job.Context.ReportID)

	if s.eventBus != nil {
		s.eventBus.PublishJobCompleted(events.JobCompletedEvent{Job: job, Timestamp: time.Now()})
		s.eventBus.PublishSiteScanCompleted(events.SiteScanCompletedEvent{
			SiteURL:   job.Context.SiteURL,
			ReportID:  job.Context.ReportID,
			Job:       job,
			Timestamp: time.Now(),
		})
	}
}

// failJob marks the job failed and publishes the failure event.
func (s *JobServiceImpl) failJob(job *jobs.Job, errorMsg string) {
	jobLifecycle := &jobs.JobLifecycle{}
	if err := jobLifecycle.FailJob(job, errorMsg); err != nil {
		s.logger.Error("Failed to fail job", "job_id", job.ID, "error", err)
		return
	}

	if s.eventBus != nil {
		s.eventBus.PublishJobFailed(events.JobFailedEvent{Job: job, Error: errorMsg, Timestamp: time.Now()})
	}
}

// recordHistory writes the terminal history row. History failures are
// logged, never propagated: the scan itself already finished.
func (s *JobServiceImpl) recordHistory(job *jobs.Job) {
	if s.history == nil || job.CompletedAt == nil {
		return
	}

	record := &contracts.ScanRunRecord{
		JobID:       job.ID,
		SiteURL:     job.Context.SiteURL,
		Scope:       string(job.Context.Request.Scope),
		Status:      string(job.Status),
		ReportID:    job.Context.ReportID,
		Stats:       job.State.Stats,
		StartedAt:   job.StartedAt,
		CompletedAt: *job.CompletedAt,
	}
	if err := s.history.RecordRun(context.Background(), record); err != nil {
		s.logger.Error("Failed to record scan history", "job_id", job.ID, "error", err)
	}
}

// GetJob retrieves job by ID.
func (s *JobServiceImpl) GetJob(jobID string) (*jobs.Job, bool) {
	job, err := s.jobRepo.GetJob(context.Background(), jobID)
	if err != nil {
		s.logger.Error("Failed to get job from repository", "job_id", jobID, "error", err)
		return nil, false
	}
	if job == nil {
		return nil, false
	}
	return job, true
}

// CancelJob cancels a running job. The executor observes the context
// cancellation, discards partial output and returns; terminal state is
// set here so the caller sees it immediately.
func (s *JobServiceImpl) CancelJob(jobID string) (*jobs.Job, error) {
	ctx := context.Background()
	job, err := s.jobRepo.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	s.jobsMutex.Lock()
	if cancelFunc, exists := s.runningJobs[jobID]; exists {
		cancelFunc()
		s.logger.Info("Cancelled running job context", "job_id", jobID)
	}
	s.jobsMutex.Unlock()

	jobLifecycle := &jobs.JobLifecycle{}
	if err := jobLifecycle.CancelJob(job); err != nil {
		return nil, err
	}

	if err := s.jobRepo.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if s.eventBus != nil {
		s.eventBus.PublishJobCancelled(events.JobCancelledEvent{Job: job, Timestamp: time.Now()})
	}
	s.notifyJobUpdate(job.ID, job)

	return job, nil
}

// ListAllJobs returns all jobs from repository.
func (s *JobServiceImpl) ListAllJobs() []*jobs.Job {
	jobList, err := s.jobRepo.ListJobs(context.Background())
	if err != nil {
		s.logger.Error("Failed to list all jobs", "error", err)
		return []*jobs.Job{}
	}
	return jobList
}

// ListJobsByType returns jobs filtered by type.
func (s *JobServiceImpl) ListJobsByType(jobType jobs.JobType) []*jobs.Job {
	jobList, err := s.jobRepo.ListJobsByType(context.Background(), jobType)
	if err != nil {
		s.logger.Error("Failed to list jobs by type", "type", jobType, "error", err)
		return []*jobs.Job{}
	}
	return jobList
}

// ListJobsByStatus returns jobs filtered by status.
func (s *JobServiceImpl) ListJobsByStatus(status jobs.JobStatus) []*jobs.Job {
	jobList, err := s.jobRepo.ListJobsByStatus(context.Background(), status)
	if err != nil {
		s.logger.Error("Failed to list jobs by status", "status", status, "error", err)
		return []*jobs.Job{}
	}
	return jobList
}

// SetUpdateNotifier sets the update notifier for job changes.
func (s *JobServiceImpl) SetUpdateNotifier(notifier UpdateNotifier) {
	s.notifier = notifier
}

func (s *JobServiceImpl) notifyJobUpdate(jobID string, job *jobs.Job) {
	if s.notifier != nil {
		s.notifier.NotifyJobUpdate(jobID, job)
	}
}
