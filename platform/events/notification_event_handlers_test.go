package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"spscan/domain/events"
	"spscan/domain/jobs"
)

// MockSSEBroadcaster for testing NotificationEventHandlers
type MockSSEBroadcaster struct {
	mock.Mock
}

func (m *MockSSEBroadcaster) BroadcastJobUpdate(jobID string, data string) {
	m.Called(jobID, data)
}

func (m *MockSSEBroadcaster) BroadcastJobListUpdate() {
	m.Called()
}

func (m *MockSSEBroadcaster) BroadcastScanCompleted(siteURL, reportID string) {
	m.Called(siteURL, reportID)
}

func createTestJobForHandlers(jobID string, status jobs.JobStatus) *jobs.Job {
	job := &jobs.Job{
		ID:          jobID,
		Type:        jobs.JobTypeSiteScan,
		Status:      status,
		StartedAt:   time.Now(),
		CompletedAt: func() *time.Time { t := time.Now(); return &t }(),
		Context:     jobs.ScanJobContext{SiteURL: "https://test.sharepoint.com"},
	}
	job.InitializeState()
	return job
}

func TestNotificationEventHandlers_HandleJobCompleted_Success(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)

	job := createTestJobForHandlers("completed-job-1", jobs.JobStatusCompleted)
	event := events.JobCompletedEvent{
		Job:       job,
		Timestamp: time.Now(),
	}

	// Set expectations
	mockSSE.On("BroadcastJobUpdate", "completed-job-1", mock.AnythingOfType("string")).Return()
	mockSSE.On("BroadcastJobListUpdate").Return()

	// Act
	handlers.handleJobCompleted(event)

	// Assert
	mockSSE.AssertExpectations(t)
	mockSSE.AssertCalled(t, "BroadcastJobListUpdate")
}

func TestNotificationEventHandlers_HandleJobFailed_PayloadCarriesError(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)

	job := createTestJobForHandlers("failed-job-1", jobs.JobStatusFailed)
	job.Error = "authentication error"
	event := events.JobFailedEvent{
		Job:       job,
		Error:     "authentication error",
		Timestamp: time.Now(),
	}

	var payload string
	mockSSE.On("BroadcastJobUpdate", "failed-job-1", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { payload = args.Get(1).(string) }).Return()
	mockSSE.On("BroadcastJobListUpdate").Return()

	// Act
	handlers.handleJobFailed(event)

	// Assert
	mockSSE.AssertExpectations(t)

	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "failed", decoded["status"])
	assert.Equal(t, "authentication error", decoded["error"])
}

func TestNotificationEventHandlers_HandleJobCancelled_Success(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)

	job := createTestJobForHandlers("cancelled-job-1", jobs.JobStatusCancelled)
	event := events.JobCancelledEvent{
		Job:       job,
		Timestamp: time.Now(),
	}

	mockSSE.On("BroadcastJobUpdate", "cancelled-job-1", mock.AnythingOfType("string")).Return()
	mockSSE.On("BroadcastJobListUpdate").Return()

	// Act
	handlers.handleJobCancelled(event)

	// Assert
	mockSSE.AssertExpectations(t)
}

func TestNotificationEventHandlers_HandleSiteScanCompleted_Success(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)

	job := createTestJobForHandlers("site-scan-job", jobs.JobStatusCompleted)
	event := events.SiteScanCompletedEvent{
		SiteURL:   "https://contoso.sharepoint.com",
		ReportID:  "report-42",
		Job:       job,
		Timestamp: time.Now(),
	}

	mockSSE.On("BroadcastScanCompleted", "https://contoso.sharepoint.com", "report-42").Return()

	// Act
	handlers.handleSiteScanCompleted(event)

	// Assert
	mockSSE.AssertExpectations(t)
	mockSSE.AssertCalled(t, "BroadcastScanCompleted", "https://contoso.sharepoint.com", "report-42")
}

func TestNotificationEventHandlers_HandleJobProgress_StreamsState(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)

	job := createTestJobForHandlers("progress-job", jobs.JobStatusRunning)
	job.UpdateProgress("Scanning Items", "Scanning Documents", 70, 120, 500)

	var payload string
	mockSSE.On("BroadcastJobUpdate", "progress-job", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { payload = args.Get(1).(string) }).Return()

	// Act
	handlers.handleJobProgress(events.JobProgressEvent{Job: job, Timestamp: time.Now()})

	// Assert
	mockSSE.AssertExpectations(t)

	var decoded struct {
		Progress jobs.JobProgress `json:"progress"`
	}
	assert.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, 70, decoded.Progress.Percentage)
	assert.Equal(t, 120, decoded.Progress.ItemsDone)
	assert.Equal(t, 500, decoded.Progress.ItemsTotal)
}

func TestNotificationEventHandlers_RegisterHandlers_AllEventsRegistered(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)
	eventBus := NewJobEventBus()

	// Act
	handlers.RegisterHandlers(eventBus)

	job := createTestJobForHandlers("register-test-job", jobs.JobStatusCompleted)
	failedJob := createTestJobForHandlers("register-test-job-failed", jobs.JobStatusFailed)
	cancelledJob := createTestJobForHandlers("register-test-job-cancelled", jobs.JobStatusCancelled)

	mockSSE.On("BroadcastJobUpdate", mock.AnythingOfType("string"), mock.AnythingOfType("string")).Return()
	mockSSE.On("BroadcastJobListUpdate").Return()
	mockSSE.On("BroadcastScanCompleted", "https://test.sharepoint.com", "report-1").Return()

	// Publish events of each type
	eventBus.PublishJobCompleted(events.JobCompletedEvent{Job: job, Timestamp: time.Now()})
	eventBus.PublishJobFailed(events.JobFailedEvent{Job: failedJob, Error: "Test error", Timestamp: time.Now()})
	eventBus.PublishJobCancelled(events.JobCancelledEvent{Job: cancelledJob, Timestamp: time.Now()})
	eventBus.PublishSiteScanCompleted(events.SiteScanCompletedEvent{
		SiteURL:   "https://test.sharepoint.com",
		ReportID:  "report-1",
		Job:       job,
		Timestamp: time.Now(),
	})

	// Wait for async handlers
	time.Sleep(20 * time.Millisecond)

	// Assert: 3 terminal job events each push an update and a list
	// refresh, the site completion pushes one notification.
	mockSSE.AssertNumberOfCalls(t, "BroadcastJobUpdate", 3)
	mockSSE.AssertNumberOfCalls(t, "BroadcastJobListUpdate", 3)
	mockSSE.AssertNumberOfCalls(t, "BroadcastScanCompleted", 1)
}

func TestNotificationEventHandlers_HandlerWithNilJob_DoesNotPanic(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}
	handlers := NewNotificationEventHandlers(mockSSE)

	mockSSE.On("BroadcastJobListUpdate").Return()

	// Act & Assert - should not panic with nil job
	assert.NotPanics(t, func() {
		handlers.handleJobCompleted(events.JobCompletedEvent{
			Job:       nil,
			Timestamp: time.Now(),
		})
	})

	mockSSE.AssertExpectations(t)
}

func TestNotificationEventHandlers_MultipleHandlersForSameEvent_BothCalled(t *testing.T) {
	// Arrange
	mockSSE1 := &MockSSEBroadcaster{}
	mockSSE2 := &MockSSEBroadcaster{}

	handlers1 := NewNotificationEventHandlers(mockSSE1)
	handlers2 := NewNotificationEventHandlers(mockSSE2)

	eventBus := NewJobEventBus()
	handlers1.RegisterHandlers(eventBus)
	handlers2.RegisterHandlers(eventBus)

	job := createTestJobForHandlers("multi-handler-job", jobs.JobStatusCompleted)

	mockSSE1.On("BroadcastJobUpdate", "multi-handler-job", mock.AnythingOfType("string")).Return()
	mockSSE1.On("BroadcastJobListUpdate").Return()
	mockSSE2.On("BroadcastJobUpdate", "multi-handler-job", mock.AnythingOfType("string")).Return()
	mockSSE2.On("BroadcastJobListUpdate").Return()

	// Act
	eventBus.PublishJobCompleted(events.JobCompletedEvent{Job: job, Timestamp: time.Now()})

	// Wait for async handlers
	time.Sleep(20 * time.Millisecond)

	// Assert - both sets of handlers should have been called
	mockSSE1.AssertExpectations(t)
	mockSSE2.AssertExpectations(t)
}
