package events

// JobEventPublisher defines the interface for publishing job-related events.
type JobEventPublisher interface {
	PublishJobProgress(event JobProgressEvent)
	PublishJobCompleted(event JobCompletedEvent)
	PublishJobFailed(event JobFailedEvent)
	PublishJobCancelled(event JobCancelledEvent)
	PublishSiteScanCompleted(event SiteScanCompletedEvent)
}
