package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"spscan/domain/jobs"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// jobView is the client-facing shape of a job.
type jobView struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Status      string           `json:"status"`
	SiteURL     string           `json:"site_url"`
	StartedAt   string           `json:"started_at"`
	CompletedAt string           `json:"completed_at,omitempty"`
	Progress    jobs.JobProgress `json:"progress"`
	Stage       string           `json:"stage"`
	ReportID    string           `json:"report_id,omitempty"`
	Error       string           `json:"error,omitempty"`
	Duration    string           `json:"duration"`
}

func formatJob(job *jobs.Job) jobView {
	view := jobView{
		ID:        job.ID,
		Type:      string(job.Type),
		Status:    string(job.Status),
		SiteURL:   job.Context.SiteURL,
		StartedAt: job.StartedAt.Format(time.RFC3339),
		Progress:  job.State.Progress,
		Stage:     job.State.Stage,
		ReportID:  job.Context.ReportID,
		Error:     job.Error,
		Duration:  job.Duration().String(),
	}
	if job.CompletedAt != nil {
		view.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return view
}

func formatJobs(jobList []*jobs.Job) []jobView {
	views := make([]jobView, 0, len(jobList))
	for _, job := range jobList {
		views = append(views, formatJob(job))
	}
	return views
}
