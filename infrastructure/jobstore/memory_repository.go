package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spscan/domain/contracts"
	"spscan/domain/jobs"
)

// MemoryJobRepository keeps jobs in process memory. Jobs are
// operational state tied to the running server; the durable record of
// each scan goes to the scan-run history instead.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.Job
}

// NewMemoryJobRepository creates an empty repository.
func NewMemoryJobRepository() contracts.JobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*jobs.Job)}
}

func (r *MemoryJobRepository) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[jobID], nil
}

func (r *MemoryJobRepository) ListJobs(ctx context.Context) ([]*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(*jobs.Job) bool { return true }), nil
}

func (r *MemoryJobRepository) ListJobsByType(ctx context.Context, jobType jobs.JobType) ([]*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(j *jobs.Job) bool { return j.Type == jobType }), nil
}

func (r *MemoryJobRepository) ListJobsByStatus(ctx context.Context, status jobs.JobStatus) ([]*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(j *jobs.Job) bool { return j.Status == status }), nil
}

func (r *MemoryJobRepository) ListActiveJobs(ctx context.Context) ([]*jobs.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(j *jobs.Job) bool { return j.IsActive() }), nil
}

func (r *MemoryJobRepository) CreateJob(ctx context.Context, job *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *MemoryJobRepository) UpdateJob(ctx context.Context, job *jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; !exists {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	r.jobs[job.ID] = job
	return nil
}

// sortedLocked returns matching jobs newest first. Caller holds the lock.
func (r *MemoryJobRepository) sortedLocked(match func(*jobs.Job) bool) []*jobs.Job {
	out := make([]*jobs.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if match(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}
