package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spscan/application"
	"spscan/logging"
)

// JobHandlers handles job-related HTTP endpoints with registry-based execution.
// Provides thin orchestration layer for job management operations using pluggable executors.
type JobHandlers struct {
	jobService application.JobService
	logger     *logging.Logger
}

// NewJobHandlers creates a new job handlers instance with registry-based job service.
func NewJobHandlers(jobService application.JobService) *JobHandlers {
	return &JobHandlers{
		jobService: jobService,
		logger:     logging.Default().WithComponent("job_handler"),
	}
}

// ListJobs returns all jobs, newest first.
// GET /api/jobs
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobList := h.jobService.ListAllJobs()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  formatJobs(jobList),
		"count": len(jobList),
	})
}

// GetJobStatus returns the current status of a job.
// GET /api/jobs/{jobID}
func (h *JobHandlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job, exists := h.jobService.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, formatJob(job))
}

// CancelJob cancels a running job - thin orchestration with business logic in service
// POST /api/jobs/{jobID}/cancel
func (h *JobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job, err := h.jobService.CancelJob(jobID)
	if err != nil {
		h.logger.Error("Failed to cancel job", "job_id", jobID, "error", err)
		if err.Error() == "job not found" {
			writeError(w, http.StatusNotFound, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	h.logger.Info("Job cancellation requested", "job_id", jobID)
	writeJSON(w, http.StatusOK, formatJob(job))
}
