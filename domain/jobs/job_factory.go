package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"spscan/domain/scan"
)

// JobFactory creates new jobs with proper initialization
type JobFactory struct{}

// CreateScanJob creates a new site scan job for a validated request.
func (jf *JobFactory) CreateScanJob(request scan.Request, siteURL string) *Job {
	job := &Job{
		ID:        jf.generateJobID(JobTypeSiteScan),
		Type:      JobTypeSiteScan,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Context: ScanJobContext{
			Request: request,
			SiteURL: siteURL,
		},
	}
	job.InitializeState()
	return job
}

// generateJobID creates a unique job identifier
func (jf *JobFactory) generateJobID(jobType JobType) string {
	// Generate random component for uniqueness
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-only if random fails
		return fmt.Sprintf("%s_%s", jobType, time.Now().Format("20060102_150405"))
	}

	return fmt.Sprintf("%s_%s_%s",
		jobType,
		time.Now().Format("20060102_150405"),
		hex.EncodeToString(bytes))
}
