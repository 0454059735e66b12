package executors

import (
	"context"
	"encoding/json"
	"fmt"

	"spscan/application"
	"spscan/domain/jobs"
	"spscan/domain/scan"
	"spscan/logging"
)

// ScanRunner executes a single scan end to end and returns its
// terminal result.
type ScanRunner interface {
	Run(ctx context.Context, request scan.Request, progress scan.ProgressReporter) (*scan.Result, error)
}

// ScanRunnerFactory builds a runner bound to a specific site. The
// underlying SharePoint client authenticates per site URL, so a fresh
// runner is created for every job.
type ScanRunnerFactory interface {
	CreateScanRunner(siteURL string) (ScanRunner, error)
}

// SiteScanExecutor handles site scan job execution
type SiteScanExecutor struct {
	runnerFactory ScanRunnerFactory
	logger        *logging.Logger
}

// NewSiteScanExecutor creates a new site scan executor
func NewSiteScanExecutor(runnerFactory ScanRunnerFactory) *SiteScanExecutor {
	return &SiteScanExecutor{
		runnerFactory: runnerFactory,
		logger:        logging.Default().WithComponent("site_scan_executor"),
	}
}

// Execute implements the JobExecutor interface for site scan jobs
func (e *SiteScanExecutor) Execute(ctx context.Context, job *jobs.Job, progressCallback application.ProgressCallback) error {
	siteURL := job.Context.SiteURL
	e.logger.Info("Starting site scan execution", "jobID", job.ID, "siteURL", siteURL)

	runner, err := e.runnerFactory.CreateScanRunner(siteURL)
	if err != nil {
		return fmt.Errorf("create scan runner for %s: %w", siteURL, err)
	}

	progressReporter := &ProgressAdapter{
		progressCallback: progressCallback,
		logger:           e.logger,
	}

	result, err := runner.Run(ctx, job.Context.Request, progressReporter)
	if result != nil {
		e.storeResultInJob(job, result)
	}
	if err != nil {
		return err
	}

	e.logger.Info("Site scan execution completed",
		"jobID", job.ID, "siteURL", siteURL, "reportID", result.ReportID)
	return nil
}

// ProgressAdapter adapts scan progress reporting to the job system's progress callback
type ProgressAdapter struct {
	progressCallback application.ProgressCallback
	logger           *logging.Logger
}

// ReportProgress implements the ProgressReporter interface
func (a *ProgressAdapter) ReportProgress(stage, description string, percentage int) {
	a.logger.Debug("Scan progress", "stage", stage, "description", description, "percentage", percentage)
	a.progressCallback(stage, description, percentage, 0, 0)
}

// ReportItemProgress implements the ProgressReporter interface with item counts
func (a *ProgressAdapter) ReportItemProgress(stage, description string, percentage, itemsDone, itemsTotal int) {
	a.logger.Debug("Scan item progress", "stage", stage, "description", description,
		"percentage", percentage, "itemsDone", itemsDone, "itemsTotal", itemsTotal)
	a.progressCallback(stage, description, percentage, itemsDone, itemsTotal)
}

// storeResultInJob copies the scan outcome onto the job so it survives
// in the job list and the run history.
func (e *SiteScanExecutor) storeResultInJob(job *jobs.Job, result *scan.Result) {
	job.Context.ReportID = result.ReportID
	job.State.Stats = result.Stats

	summary := map[string]interface{}{
		"site_url":           result.SiteURL,
		"status":             string(result.Status),
		"report_id":          result.ReportID,
		"objects_scanned":    result.Stats.ObjectsScanned,
		"groups_found":       result.Stats.GroupsFound,
		"users_found":        result.Stats.UsersFound,
		"broken_inheritance": result.Stats.BrokenInheritance,
		"subsites_scanned":   result.Stats.SubsitesScanned,
		"errors":             result.Stats.Errors,
		"duration":           result.CompletedAt.Sub(result.StartedAt).String(),
	}

	resultJSON, err := json.Marshal(summary)
	if err != nil {
		e.logger.Warn("Failed to serialize scan result", "job_id", job.ID, "error", err)
		return
	}
	job.Result = string(resultJSON)
}
