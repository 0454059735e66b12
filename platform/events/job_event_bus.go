package events

import (
	"sync"

	"spscan/domain/events"
	"spscan/logging"
)

// JobEventBus provides type-safe event publishing and subscription for job-related events
type JobEventBus struct {
	mu     sync.RWMutex
	logger *logging.Logger

	// Event handler slices for each event type
	jobProgressHandlers       []func(events.JobProgressEvent)
	jobCompletedHandlers      []func(events.JobCompletedEvent)
	jobFailedHandlers         []func(events.JobFailedEvent)
	jobCancelledHandlers      []func(events.JobCancelledEvent)
	siteScanCompletedHandlers []func(events.SiteScanCompletedEvent)
}

// NewJobEventBus creates a new typed job event bus
func NewJobEventBus() *JobEventBus {
	return &JobEventBus{
		logger:                    logging.Default().WithComponent("job_event_bus"),
		jobProgressHandlers:       make([]func(events.JobProgressEvent), 0),
		jobCompletedHandlers:      make([]func(events.JobCompletedEvent), 0),
		jobFailedHandlers:         make([]func(events.JobFailedEvent), 0),
		jobCancelledHandlers:      make([]func(events.JobCancelledEvent), 0),
		siteScanCompletedHandlers: make([]func(events.SiteScanCompletedEvent), 0),
	}
}

// Subscribe methods for each event type

func (bus *JobEventBus) OnJobProgress(handler func(events.JobProgressEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobProgressHandlers = append(bus.jobProgressHandlers, handler)
}

func (bus *JobEventBus) OnJobCompleted(handler func(events.JobCompletedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobCompletedHandlers = append(bus.jobCompletedHandlers, handler)
}

func (bus *JobEventBus) OnJobFailed(handler func(events.JobFailedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobFailedHandlers = append(bus.jobFailedHandlers, handler)
}

func (bus *JobEventBus) OnJobCancelled(handler func(events.JobCancelledEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.jobCancelledHandlers = append(bus.jobCancelledHandlers, handler)
}

func (bus *JobEventBus) OnSiteScanCompleted(handler func(events.SiteScanCompletedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.siteScanCompletedHandlers = append(bus.siteScanCompletedHandlers, handler)
}

// Publish methods for each event type

func (bus *JobEventBus) PublishJobProgress(event events.JobProgressEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobProgressEvent), len(bus.jobProgressHandlers))
	copy(handlers, bus.jobProgressHandlers)
	bus.mu.RUnlock()

	// Execute handlers asynchronously to avoid blocking the publisher
	for _, handler := range handlers {
		go func(h func(events.JobProgressEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobProgress",
						"job_id", event.Job.ID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *JobEventBus) PublishJobCompleted(event events.JobCompletedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobCompletedEvent), len(bus.jobCompletedHandlers))
	copy(handlers, bus.jobCompletedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.JobCompletedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobCompleted",
						"job_id", event.Job.ID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *JobEventBus) PublishJobFailed(event events.JobFailedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobFailedEvent), len(bus.jobFailedHandlers))
	copy(handlers, bus.jobFailedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.JobFailedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobFailed",
						"job_id", event.Job.ID,
						"error", event.Error,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *JobEventBus) PublishJobCancelled(event events.JobCancelledEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.JobCancelledEvent), len(bus.jobCancelledHandlers))
	copy(handlers, bus.jobCancelledHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.JobCancelledEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in JobCancelled",
						"job_id", event.Job.ID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *JobEventBus) PublishSiteScanCompleted(event events.SiteScanCompletedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.SiteScanCompletedEvent), len(bus.siteScanCompletedHandlers))
	copy(handlers, bus.siteScanCompletedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.SiteScanCompletedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in SiteScanCompleted",
						"site_url", event.SiteURL,
						"job_id", event.Job.ID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}
