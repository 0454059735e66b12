package events

import (
	"encoding/json"

	"spscan/domain/events"
	"spscan/domain/jobs"
	"spscan/logging"
)

// SSEBroadcaster defines the interface for pushing live updates to
// connected clients.
type SSEBroadcaster interface {
	BroadcastJobUpdate(jobID string, data string)
	BroadcastJobListUpdate()
	BroadcastScanCompleted(siteURL, reportID string)
}

// NotificationEventHandlers converts job events into client
// notifications over the streaming channel.
type NotificationEventHandlers struct {
	sseBroadcaster SSEBroadcaster
	logger         *logging.Logger
}

// NewNotificationEventHandlers creates event handlers for notifications
func NewNotificationEventHandlers(sseBroadcaster SSEBroadcaster) *NotificationEventHandlers {
	return &NotificationEventHandlers{
		sseBroadcaster: sseBroadcaster,
		logger:         logging.Default().WithComponent("notification_events"),
	}
}

// RegisterHandlers registers all notification event handlers with the event bus
func (h *NotificationEventHandlers) RegisterHandlers(eventBus *JobEventBus) {
	eventBus.OnJobProgress(h.handleJobProgress)
	eventBus.OnJobCompleted(h.handleJobCompleted)
	eventBus.OnJobFailed(h.handleJobFailed)
	eventBus.OnJobCancelled(h.handleJobCancelled)
	eventBus.OnSiteScanCompleted(h.handleSiteScanCompleted)
}

// Event handler implementations

func (h *NotificationEventHandlers) handleJobProgress(event events.JobProgressEvent) {
	if event.Job == nil {
		return
	}
	h.sseBroadcaster.BroadcastJobUpdate(event.Job.ID, jobUpdatePayload(event.Job))
}

func (h *NotificationEventHandlers) handleJobCompleted(event events.JobCompletedEvent) {
	jobID := "unknown"
	if event.Job != nil {
		jobID = event.Job.ID
		h.sseBroadcaster.BroadcastJobUpdate(jobID, jobUpdatePayload(event.Job))
	}
	h.logger.Info("Handling job completed event", "job_id", jobID)

	h.sseBroadcaster.BroadcastJobListUpdate()
}

func (h *NotificationEventHandlers) handleJobFailed(event events.JobFailedEvent) {
	jobID := "unknown"
	if event.Job != nil {
		jobID = event.Job.ID
		h.sseBroadcaster.BroadcastJobUpdate(jobID, jobUpdatePayload(event.Job))
	}
	h.logger.Info("Handling job failed event", "job_id", jobID, "error", event.Error)

	h.sseBroadcaster.BroadcastJobListUpdate()
}

func (h *NotificationEventHandlers) handleJobCancelled(event events.JobCancelledEvent) {
	jobID := "unknown"
	if event.Job != nil {
		jobID = event.Job.ID
		h.sseBroadcaster.BroadcastJobUpdate(jobID, jobUpdatePayload(event.Job))
	}
	h.logger.Info("Handling job cancelled event", "job_id", jobID)

	h.sseBroadcaster.BroadcastJobListUpdate()
}

func (h *NotificationEventHandlers) handleSiteScanCompleted(event events.SiteScanCompletedEvent) {
	jobID := "unknown"
	if event.Job != nil {
		jobID = event.Job.ID
	}
	h.logger.Info("Handling site scan completed event",
		"site_url", event.SiteURL, "job_id", jobID, "report_id", event.ReportID)

	h.sseBroadcaster.BroadcastScanCompleted(event.SiteURL, event.ReportID)
}

// jobUpdatePayload serializes the client-facing slice of job state.
func jobUpdatePayload(job *jobs.Job) string {
	payload := struct {
		ID       string           `json:"id"`
		Status   jobs.JobStatus   `json:"status"`
		Progress jobs.JobProgress `json:"progress"`
		Error    string           `json:"error,omitempty"`
		ReportID string           `json:"report_id,omitempty"`
	}{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.State.Progress,
		Error:    job.Error,
		ReportID: job.Context.ReportID,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
