package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spscan/domain/events"
	"spscan/domain/jobs"
)

func createTestJobForIntegration(jobID string, status jobs.JobStatus) *jobs.Job {
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

// Integration test for the complete event flow: EventBus -> EventHandlers -> SSE
func TestEventSystem_EndToEndFlow_EventBusToSSENotification(t *testing.T) {
	// Arrange - Set up the complete event system
	mockSSE := &MockSSEBroadcaster{}

	// Create event bus and handlers
	eventBus := NewJobEventBus()
	notificationHandlers := NewNotificationEventHandlers(mockSSE)
	notificationHandlers.RegisterHandlers(eventBus)

	// Create test job
	testJob := createTestJobForIntegration("integration-job", jobs.JobStatusCompleted)

	// Set up expectations
	mockSSE.On("BroadcastJobUpdate", "integration-job", mock.AnythingOfType("string")).Return()
	mockSSE.On("BroadcastJobListUpdate").Return()
	mockSSE.On("BroadcastScanCompleted", "https://test.sharepoint.com", "report-1").Return()

	// Act - Publish events through the event bus
	eventBus.PublishJobCompleted(events.JobCompletedEvent{
		Job:       testJob,
		Timestamp: time.Now(),
	})

	eventBus.PublishSiteScanCompleted(events.SiteScanCompletedEvent{
		SiteURL:   "https://test.sharepoint.com",
		ReportID:  "report-1",
		Job:       testJob,
		Timestamp: time.Now(),
	})

	// Wait for async event processing
	time.Sleep(50 * time.Millisecond)

	// Assert - Verify the complete flow worked
	mockSSE.AssertExpectations(t)
	mockSSE.AssertCalled(t, "BroadcastJobUpdate", "integration-job", mock.AnythingOfType("string"))
	mockSSE.AssertCalled(t, "BroadcastJobListUpdate")
	mockSSE.AssertCalled(t, "BroadcastScanCompleted", "https://test.sharepoint.com", "report-1")
}

// Integration test for failed job flow
func TestEventSystem_EndToEndFlow_JobFailureNotification(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}

	eventBus := NewJobEventBus()
	notificationHandlers := NewNotificationEventHandlers(mockSSE)
	notificationHandlers.RegisterHandlers(eventBus)

	testJob := createTestJobForIntegration("failed-job", jobs.JobStatusFailed)

	// Set expectations - no scan completion notification for failed jobs
	mockSSE.On("BroadcastJobUpdate", "failed-job", mock.AnythingOfType("string")).Return()
	mockSSE.On("BroadcastJobListUpdate").Return()

	// Act
	eventBus.PublishJobFailed(events.JobFailedEvent{
		Job:       testJob,
		Error:     "Test error",
		Timestamp: time.Now(),
	})

	time.Sleep(50 * time.Millisecond)

	// Assert
	mockSSE.AssertExpectations(t)
	mockSSE.AssertCalled(t, "BroadcastJobUpdate", "failed-job", mock.AnythingOfType("string"))
	mockSSE.AssertCalled(t, "BroadcastJobListUpdate")

	// Should NOT broadcast scan completion for failed jobs
	mockSSE.AssertNotCalled(t, "BroadcastScanCompleted")
}

// Integration test for multiple concurrent events
func TestEventSystem_EndToEndFlow_ConcurrentEvents_AllProcessed(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}

	eventBus := NewJobEventBus()
	notificationHandlers := NewNotificationEventHandlers(mockSSE)
	notificationHandlers.RegisterHandlers(eventBus)

	// Create multiple test jobs
	const numJobs = 5
	testJobs := make([]*jobs.Job, numJobs)
	for i := 0; i < numJobs; i++ {
		testJobs[i] = createTestJobForIntegration(fmt.Sprintf("concurrent-job-%d", i), jobs.JobStatusCompleted)
	}

	// Set up expectations for all jobs
	for _, job := range testJobs {
		mockSSE.On("BroadcastJobUpdate", job.ID, mock.AnythingOfType("string")).Return()
	}
	mockSSE.On("BroadcastJobListUpdate").Return().Times(numJobs)

	// Act - Publish events concurrently
	var wg sync.WaitGroup
	wg.Add(numJobs)

	for i := 0; i < numJobs; i++ {
		go func(job *jobs.Job) {
			defer wg.Done()

			eventBus.PublishJobCompleted(events.JobCompletedEvent{
				Job:       job,
				Timestamp: time.Now(),
			})
		}(testJobs[i])
	}

	wg.Wait()

	// Wait for all async event processing
	time.Sleep(100 * time.Millisecond)

	// Assert
	mockSSE.AssertExpectations(t)

	// Verify all jobs were processed
	for _, job := range testJobs {
		mockSSE.AssertCalled(t, "BroadcastJobUpdate", job.ID, mock.AnythingOfType("string"))
	}
}

// Integration test verifying event isolation - different event types handled separately
func TestEventSystem_EndToEndFlow_EventTypeIsolation(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}

	eventBus := NewJobEventBus()
	notificationHandlers := NewNotificationEventHandlers(mockSSE)
	notificationHandlers.RegisterHandlers(eventBus)

	completedJob := createTestJobForIntegration("completed-job", jobs.JobStatusCompleted)
	failedJob := createTestJobForIntegration("failed-job", jobs.JobStatusFailed)
	cancelledJob := createTestJobForIntegration("cancelled-job", jobs.JobStatusCancelled)

	// Track which jobs were processed
	var mu sync.Mutex
	var completedNotified, failedNotified, cancelledNotified bool

	mockSSE.On("BroadcastJobUpdate", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			mu.Lock()
			switch args.Get(0).(string) {
			case "completed-job":
				completedNotified = true
			case "failed-job":
				failedNotified = true
			case "cancelled-job":
				cancelledNotified = true
			}
			mu.Unlock()
		}).Return()

	mockSSE.On("BroadcastJobListUpdate").Return()
	mockSSE.On("BroadcastScanCompleted", "https://test.sharepoint.com", "report-1").Return() // Only for completed job

	// Act - Publish different event types
	eventBus.PublishJobCompleted(events.JobCompletedEvent{
		Job:       completedJob,
		Timestamp: time.Now(),
	})

	eventBus.PublishJobFailed(events.JobFailedEvent{
		Job:       failedJob,
		Error:     "Test error",
		Timestamp: time.Now(),
	})

	eventBus.PublishJobCancelled(events.JobCancelledEvent{
		Job:       cancelledJob,
		Timestamp: time.Now(),
	})

	// Only completed jobs should trigger scan completion
	eventBus.PublishSiteScanCompleted(events.SiteScanCompletedEvent{
		SiteURL:   "https://test.sharepoint.com",
		ReportID:  "report-1",
		Job:       completedJob,
		Timestamp: time.Now(),
	})

	time.Sleep(100 * time.Millisecond)

	// Assert
	mockSSE.AssertExpectations(t)

	// Verify all job types were processed correctly
	mu.Lock()
	assert.True(t, completedNotified, "Completed job should have been notified")
	assert.True(t, failedNotified, "Failed job should have been notified")
	assert.True(t, cancelledNotified, "Cancelled job should have been notified")
	mu.Unlock()

	// Verify scan completion was broadcast only once (for completed job)
	mockSSE.AssertNumberOfCalls(t, "BroadcastScanCompleted", 1)
	mockSSE.AssertNumberOfCalls(t, "BroadcastJobListUpdate", 3) // For all three jobs
}

// Integration test for system resilience when handlers panic
func TestEventSystem_EndToEndFlow_HandlerPanicResilience(t *testing.T) {
	// Arrange
	mockSSE1 := &MockSSEBroadcaster{}
	mockSSE2 := &MockSSEBroadcaster{}

	eventBus := NewJobEventBus()

	// Register two sets of handlers - one will panic, one will work
	handlers1 := NewNotificationEventHandlers(mockSSE1)
	handlers2 := NewNotificationEventHandlers(mockSSE2)

	handlers1.RegisterHandlers(eventBus)
	handlers2.RegisterHandlers(eventBus)

	testJob := createTestJobForIntegration("panic-test-job", jobs.JobStatusCompleted)

	// First handler will panic
	mockSSE1.On("BroadcastJobUpdate", "panic-test-job", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			panic("Handler 1 panic!")
		}).Return()
	mockSSE1.On("BroadcastJobListUpdate").Return()

	// Second handler should work normally despite first handler panic
	mockSSE2.On("BroadcastJobUpdate", "panic-test-job", mock.AnythingOfType("string")).Return()
	mockSSE2.On("BroadcastJobListUpdate").Return()

	// Act - should not crash despite handler panic
	require.NotPanics(t, func() {
		eventBus.PublishJobCompleted(events.JobCompletedEvent{
			Job:       testJob,
			Timestamp: time.Now(),
		})
	})

	time.Sleep(100 * time.Millisecond)

	// Assert - second handler should still work
	mockSSE2.AssertExpectations(t)
}

// Integration test for event ordering and timing
func TestEventSystem_EndToEndFlow_EventOrdering(t *testing.T) {
	// Arrange
	mockSSE := &MockSSEBroadcaster{}

	eventBus := NewJobEventBus()
	notificationHandlers := NewNotificationEventHandlers(mockSSE)
	notificationHandlers.RegisterHandlers(eventBus)

	testJob := createTestJobForIntegration("ordering-job", jobs.JobStatusCompleted)

	// Track call order
	var callOrder []string
	var mu sync.Mutex

	mockSSE.On("BroadcastJobUpdate", "ordering-job", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			mu.Lock()
			callOrder = append(callOrder, "JobUpdate")
			mu.Unlock()
		}).Return()

	mockSSE.On("BroadcastJobListUpdate").
		Run(func(args mock.Arguments) {
			mu.Lock()
			callOrder = append(callOrder, "JobListUpdate")
			mu.Unlock()
		}).Return()

	mockSSE.On("BroadcastScanCompleted", "https://test.sharepoint.com", "report-1").
		Run(func(args mock.Arguments) {
			mu.Lock()
			callOrder = append(callOrder, "ScanCompleted")
			mu.Unlock()
		}).Return()

	// Act - Publish events
	eventBus.PublishJobCompleted(events.JobCompletedEvent{
		Job:       testJob,
		Timestamp: time.Now(),
	})

	eventBus.PublishSiteScanCompleted(events.SiteScanCompletedEvent{
		SiteURL:   "https://test.sharepoint.com",
		ReportID:  "report-1",
		Job:       testJob,
		Timestamp: time.Now(),
	})

	time.Sleep(100 * time.Millisecond)

	// Assert
	mockSSE.AssertExpectations(t)

	mu.Lock()
	require.Len(t, callOrder, 3, "All handlers should have been called")

	// Verify that all expected calls were made (order may vary due to async nature)
	assert.Contains(t, callOrder, "JobUpdate")
	assert.Contains(t, callOrder, "JobListUpdate")
	assert.Contains(t, callOrder, "ScanCompleted")
	mu.Unlock()
}
