package application

import (
	"context"
	"fmt"

	"spscan/domain/contracts"
	"spscan/domain/jobs"
	"spscan/domain/scan"
	"spscan/infrastructure/directory"
	"spscan/logging"
)

// ScanService is the entry point for permission scans: it validates
// requests, resolves the target site, applies cache invalidation and
// hands execution to the job system.
type ScanService interface {
	StartScan(ctx context.Context, request scan.Request) (*jobs.Job, error)
	GetScanStatus(siteID string) (*jobs.Job, bool)
	GetActiveScans() []*jobs.Job
	GetScanHistory(ctx context.Context, limit int) ([]*contracts.ScanRunRecord, error)
	CancelScan(siteID string) error
	IsSiteBeingScanned(siteID string) bool
}

// ScanServiceImpl implements ScanService over the job service.
type ScanServiceImpl struct {
	jobService JobService
	sites      contracts.SiteRegistry
	cache      directory.GroupCache
	history    contracts.ScanHistory
	logger     *logging.Logger
}

// NewScanService creates a new scan service.
func NewScanService(
	jobService JobService,
	sites contracts.SiteRegistry,
	cache directory.GroupCache,
	history contracts.ScanHistory,
) ScanService {
	return &ScanServiceImpl{
		jobService: jobService,
		sites:      sites,
		cache:      cache,
		history:    history,
		logger:     logging.Default().WithComponent("scan_service"),
	}
}

// StartScan validates and launches a scan. Validation failures and
// unknown sites are rejected before any remote call is made; cache
// invalidation happens here so it never runs mid-scan.
func (s *ScanServiceImpl) StartScan(ctx context.Context, request scan.Request) (*jobs.Job, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	if s.IsSiteBeingScanned(request.SiteID) {
		return nil, fmt.Errorf("scan already running or queued for site: %s", request.SiteID)
	}

	site, err := s.sites.Get(ctx, request.SiteID)
	if err != nil {
		return nil, err
	}

	if request.ForceCacheInvalidation {
		evicted, invalidateErr := s.cache.InvalidateAll(ctx)
		if invalidateErr != nil {
			return nil, fmt.Errorf("invalidate group cache: %w", invalidateErr)
		}
		s.logger.Info("Group cache invalidated before scan",
			"site_id", request.SiteID, "entries_evicted", evicted)
	}

	job, err := s.jobService.StartJob(request, site.URL)
	if err != nil {
		s.logger.Error("Failed to start scan job", "site_id", request.SiteID, "error", err)
		return nil, fmt.Errorf("failed to start job: %w", err)
	}

	s.logger.Info("Scan queued", "job_id", job.ID, "site_id", request.SiteID, "scope", request.Scope)
	return job, nil
}

// GetScanStatus returns the most recent scan job for the site.
func (s *ScanServiceImpl) GetScanStatus(siteID string) (*jobs.Job, bool) {
	var latest *jobs.Job
	for _, job := range s.jobService.ListAllJobs() {
		if job.Context.Request.SiteID != siteID {
			continue
		}
		if latest == nil || job.StartedAt.After(latest.StartedAt) {
			latest = job
		}
	}
	return latest, latest != nil
}

// GetActiveScans returns all running scan jobs.
func (s *ScanServiceImpl) GetActiveScans() []*jobs.Job {
	return s.jobService.ListJobsByStatus(jobs.JobStatusRunning)
}

// GetScanHistory returns the most recent finished scans, newest first.
func (s *ScanServiceImpl) GetScanHistory(ctx context.Context, limit int) ([]*contracts.ScanRunRecord, error) {
	return s.history.ListRuns(ctx, limit)
}

// CancelScan cancels the active scan for a site.
func (s *ScanServiceImpl) CancelScan(siteID string) error {
	var target *jobs.Job
	for _, job := range s.jobService.ListJobsByStatus(jobs.JobStatusRunning) {
		if job.Context.Request.SiteID == siteID {
			target = job
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no active scan found for site: %s", siteID)
	}

	if _, err := s.jobService.CancelJob(target.ID); err != nil {
		s.logger.Error("Failed to cancel job", "site_id", siteID, "job_id", target.ID, "error", err)
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	s.logger.Info("Scan cancelled", "site_id", siteID, "job_id", target.ID)
	return nil
}

// IsSiteBeingScanned reports whether a scan is running or pending for
// the site. One scan per site at a time; different sites may scan
// concurrently.
func (s *ScanServiceImpl) IsSiteBeingScanned(siteID string) bool {
	for _, status := range []jobs.JobStatus{jobs.JobStatusRunning, jobs.JobStatusPending} {
		for _, job := range s.jobService.ListJobsByStatus(status) {
			if job.Context.Request.SiteID == siteID {
				return true
			}
		}
	}
	return false
}
