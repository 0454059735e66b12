package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"spscan/application"
	"spscan/domain/jobs"
	"spscan/domain/scan"
)

// Mock implementations for testing
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) StartJob(request scan.Request, siteURL string) (*jobs.Job, error) {
	args := m.Called(request, siteURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) GetJob(jobID string) (*jobs.Job, bool) {
	args := m.Called(jobID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*jobs.Job), args.Bool(1)
}

func (m *MockJobService) CancelJob(jobID string) (*jobs.Job, error) {
	args := m.Called(jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) ListAllJobs() []*jobs.Job {
	args := m.Called()
	return args.Get(0).([]*jobs.Job)
}

func (m *MockJobService) ListJobsByType(jobType jobs.JobType) []*jobs.Job {
	args := m.Called(jobType)
	return args.Get(0).([]*jobs.Job)
}

func (m *MockJobService) ListJobsByStatus(status jobs.JobStatus) []*jobs.Job {
	args := m.Called(status)
	return args.Get(0).([]*jobs.Job)
}

func (m *MockJobService) SetUpdateNotifier(notifier application.UpdateNotifier) {
	m.Called(notifier)
}

func newHandlerTestJob(jobID string, status jobs.JobStatus, siteURL string) *jobs.Job {
	job := &jobs.Job{
		ID:      jobID,
		Type:    jobs.JobTypeSiteScan,
		Status:  status,
		Context: jobs.ScanJobContext{SiteURL: siteURL},
	}
	job.InitializeState()
	return job
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestJobHandlers_CancelJob(t *testing.T) {
	// Test: Successful cancellation
	t.Run("successful cancellation", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		activeJob := newHandlerTestJob("active-job-123", jobs.JobStatusCancelled,
			"https://example.sharepoint.com/sites/test")

		mockJobService.On("CancelJob", "active-job-123").Return(activeJob, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/active-job-123/cancel", nil)
		req = withURLParam(req, "jobID", "active-job-123")
		w := httptest.NewRecorder()

		handlers.CancelJob(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var view jobView
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "active-job-123", view.ID)
		assert.Equal(t, "cancelled", view.Status)

		mockJobService.AssertExpectations(t)
	})

	// Test: Job not found
	t.Run("job not found", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		mockJobService.On("CancelJob", "nonexistent").Return((*jobs.Job)(nil), fmt.Errorf("job not found"))

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/nonexistent/cancel", nil)
		req = withURLParam(req, "jobID", "nonexistent")
		w := httptest.NewRecorder()

		handlers.CancelJob(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "not found")

		mockJobService.AssertExpectations(t)
	})

	// Test: Job not active
	t.Run("job not active", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		mockJobService.On("CancelJob", "completed-job-123").Return((*jobs.Job)(nil), fmt.Errorf("job is no longer active"))

		req := httptest.NewRequest(http.MethodPost, "/api/jobs/completed-job-123/cancel", nil)
		req = withURLParam(req, "jobID", "completed-job-123")
		w := httptest.NewRecorder()

		handlers.CancelJob(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "no longer active")

		mockJobService.AssertExpectations(t)
	})
}

func TestJobHandlers_ListJobs(t *testing.T) {
	testJobs := []*jobs.Job{
		newHandlerTestJob("job1", jobs.JobStatusRunning, "https://example.sharepoint.com/sites/test1"),
		newHandlerTestJob("job2", jobs.JobStatusCompleted, "https://example.sharepoint.com/sites/test2"),
	}

	t.Run("returns all jobs", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		mockJobService.On("ListAllJobs").Return(testJobs)

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		w := httptest.NewRecorder()

		handlers.ListJobs(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response struct {
			Jobs  []jobView `json:"jobs"`
			Count int       `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		assert.Len(t, response.Jobs, 2)
		assert.Equal(t, "job1", response.Jobs[0].ID)
		assert.Equal(t, "job2", response.Jobs[1].ID)
		assert.Equal(t, "https://example.sharepoint.com/sites/test1", response.Jobs[0].SiteURL)

		mockJobService.AssertExpectations(t)
	})

	t.Run("empty job list", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		mockJobService.On("ListAllJobs").Return([]*jobs.Job{})

		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		w := httptest.NewRecorder()

		handlers.ListJobs(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Jobs  []jobView `json:"jobs"`
			Count int       `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 0, response.Count)
		assert.Empty(t, response.Jobs)

		mockJobService.AssertExpectations(t)
	})
}

func TestJobHandlers_GetJobStatus(t *testing.T) {
	t.Run("existing job", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		job := newHandlerTestJob("status-job", jobs.JobStatusRunning, "https://example.sharepoint.com/sites/test")
		job.UpdateProgress("Scanning Items", "Scanning Documents", 40, 80, 200)

		mockJobService.On("GetJob", "status-job").Return(job, true)

		req := httptest.NewRequest(http.MethodGet, "/api/jobs/status-job", nil)
		req = withURLParam(req, "jobID", "status-job")
		w := httptest.NewRecorder()

		handlers.GetJobStatus(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var view jobView
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
		assert.Equal(t, "status-job", view.ID)
		assert.Equal(t, "running", view.Status)
		assert.Equal(t, 40, view.Progress.Percentage)
		assert.Equal(t, "Scanning Items", view.Stage)

		mockJobService.AssertExpectations(t)
	})

	t.Run("unknown job", func(t *testing.T) {
		mockJobService := new(MockJobService)
		handlers := NewJobHandlers(mockJobService)

		mockJobService.On("GetJob", "missing").Return(nil, false)

		req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
		req = withURLParam(req, "jobID", "missing")
		w := httptest.NewRecorder()

		handlers.GetJobStatus(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)

		mockJobService.AssertExpectations(t)
	})
}
