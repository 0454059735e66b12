package jobs

import (
	"fmt"
	"time"

	"spscan/domain/scan"
)

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType represents the type of job.
type JobType string

const (
	JobTypeSiteScan JobType = "site_scan"
)

// JobProgress represents detailed progress information.
type JobProgress struct {
	Stage       string `json:"stage"`
	Description string `json:"description"`
	Percentage  int    `json:"percentage"`
	ItemsTotal  int    `json:"items_total"`
	ItemsDone   int    `json:"items_done"`
}

// JobStageInfo represents information about a stage in the job timeline.
type JobStageInfo struct {
	Stage     string     `json:"stage"`
	Started   time.Time  `json:"started"`
	Completed *time.Time `json:"completed,omitempty"`
	Duration  string     `json:"duration,omitempty"`
}

// JobState represents the complete rich state of a job.
type JobState struct {
	Stage            string         `json:"stage"`
	StageStartedAt   time.Time      `json:"stage_started_at"`
	CurrentOperation string         `json:"current_operation"`
	Progress         JobProgress    `json:"progress"`
	Timeline         []JobStageInfo `json:"timeline"`
	Stats            scan.Stats     `json:"stats"`
	Messages         []string       `json:"messages,omitempty"` // Recent status messages
}

// ScanJobContext carries the validated scan request through the job system.
type ScanJobContext struct {
	Request  scan.Request `json:"request"`
	SiteURL  string       `json:"site_url"`
	ReportID string       `json:"report_id,omitempty"`
}

// Job represents a background job with progress tracking and state management.
type Job struct {
	ID          string
	Type        JobType
	Status      JobStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	State       JobState
	Result      string
	Error       string
	Context     ScanJobContext
}

// IsActive returns true if the job is still running or pending.
func (j *Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// IsComplete returns true if the job has finished (successfully, with error, or cancelled).
func (j *Job) IsComplete() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// Duration returns how long the job has been running, or total duration if complete.
func (j *Job) Duration() time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return time.Since(j.StartedAt)
}

// UpdateProgress updates the job progress with detailed information.
func (j *Job) UpdateProgress(stage, description string, percentage, itemsDone, itemsTotal int) {
	j.State.Progress = JobProgress{
		Stage:       stage,
		Description: description,
		Percentage:  percentage,
		ItemsTotal:  itemsTotal,
		ItemsDone:   itemsDone,
	}
	j.State.CurrentOperation = description

	// Handle stage transitions
	if j.State.Stage != stage {
		if len(j.State.Timeline) > 0 {
			lastStage := &j.State.Timeline[len(j.State.Timeline)-1]
			if lastStage.Completed == nil {
				now := time.Now()
				lastStage.Completed = &now
				lastStage.Duration = now.Sub(lastStage.Started).String()
			}
		}
		j.State.Timeline = append(j.State.Timeline, JobStageInfo{
			Stage:   stage,
			Started: time.Now(),
		})
		j.State.Stage = stage
		j.State.StageStartedAt = time.Now()
	}

	// Maintain rolling buffer of last 10 status messages
	message := fmt.Sprintf("[%s] %s", stage, description)
	j.State.Messages = append(j.State.Messages, message)
	if len(j.State.Messages) > 10 {
		j.State.Messages = j.State.Messages[1:]
	}
}

// GetProgressString returns a human-readable progress string.
func (j *Job) GetProgressString() string {
	if j.State.Progress.ItemsTotal > 0 {
		return fmt.Sprintf("%s: %s (%d/%d items)",
			j.State.Stage,
			j.State.CurrentOperation,
			j.State.Progress.ItemsDone,
			j.State.Progress.ItemsTotal)
	}
	return fmt.Sprintf("%s: %s (%d%%)",
		j.State.Stage,
		j.State.CurrentOperation,
		j.State.Progress.Percentage)
}

// InitializeState initializes the job state with basic information and timeline.
func (j *Job) InitializeState() {
	j.State = JobState{
		Stage:            "initializing",
		StageStartedAt:   time.Now(),
		CurrentOperation: "Preparing scan...",
		Progress: JobProgress{
			Stage:       "initializing",
			Description: "Preparing scan...",
			Percentage:  0,
		},
		Timeline: []JobStageInfo{
			{
				Stage:   "initializing",
				Started: time.Now(),
			},
		},
		Stats:    scan.Stats{},
		Messages: []string{},
	}
}

// GetJobTypeDisplayName returns a human-readable display name for the job type.
func (j *Job) GetJobTypeDisplayName() string {
	switch j.Type {
	case JobTypeSiteScan:
		return "Site Scan"
	default:
		return string(j.Type)
	}
}
