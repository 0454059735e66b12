package scanner

import (
	"time"

	"spscan/logging"
)

// PerformanceMetrics tracks per-phase timing and throughput for one
// scan, logged once at scan end.
type PerformanceMetrics struct {
	// Timing metrics
	ConnectDuration   time.Duration
	GroupsDuration    time.Duration
	StructureDuration time.Duration
	ItemsDuration     time.Duration
	SubsitesDuration  time.Duration
	TotalDuration     time.Duration

	// Throughput metrics
	ListsProcessed       int
	ItemsProcessed       int
	ItemsWithUniquePerms int
	GroupsExpanded       int
	MembersResolved      int

	// Error metrics
	ErrorsEncountered int

	AverageProcessingRate float64 // items per second
}

// NewPerformanceMetrics creates a new metrics collection instance.
func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{}
}

// StartTiming begins timing for a specific operation.
func (m *PerformanceMetrics) StartTiming() time.Time {
	return time.Now()
}

// RecordConnect records connection phase timing.
func (m *PerformanceMetrics) RecordConnect(start time.Time) {
	m.ConnectDuration = time.Since(start)
}

// RecordGroups records group resolution phase timing.
func (m *PerformanceMetrics) RecordGroups(start time.Time, groupsExpanded, membersResolved int) {
	m.GroupsDuration = time.Since(start)
	m.GroupsExpanded += groupsExpanded
	m.MembersResolved += membersResolved
}

// RecordStructure records structure phase timing.
func (m *PerformanceMetrics) RecordStructure(start time.Time, listsProcessed int) {
	m.StructureDuration = time.Since(start)
	m.ListsProcessed += listsProcessed
}

// RecordItems records item phase timing.
func (m *PerformanceMetrics) RecordItems(start time.Time, itemsProcessed, itemsWithUnique int) {
	m.ItemsDuration = time.Since(start)
	m.ItemsProcessed += itemsProcessed
	m.ItemsWithUniquePerms += itemsWithUnique
}

// RecordSubsites records subsite recursion timing.
func (m *PerformanceMetrics) RecordSubsites(start time.Time) {
	m.SubsitesDuration = time.Since(start)
}

// RecordError increments the error counter.
func (m *PerformanceMetrics) RecordError() {
	m.ErrorsEncountered++
}

// CalculateTotalDuration calculates the total duration and the
// average processing rate.
func (m *PerformanceMetrics) CalculateTotalDuration(start time.Time) {
	m.TotalDuration = time.Since(start)

	if m.TotalDuration > 0 && m.ItemsProcessed > 0 {
		m.AverageProcessingRate = float64(m.ItemsProcessed) / m.TotalDuration.Seconds()
	}
}

// LogPerformanceMetrics outputs the scan performance summary.
func (m *PerformanceMetrics) LogPerformanceMetrics(logger *logging.Logger, siteURL string) {
	logger.Info("Scan performance summary",
		"site_url", siteURL,
		"total_duration_ms", m.TotalDuration.Milliseconds(),
		"total_duration_human", m.TotalDuration.Round(time.Millisecond).String())

	logger.Info("Timing breakdown",
		"connect_ms", m.ConnectDuration.Milliseconds(),
		"groups_ms", m.GroupsDuration.Milliseconds(),
		"structure_ms", m.StructureDuration.Milliseconds(),
		"items_ms", m.ItemsDuration.Milliseconds(),
		"subsites_ms", m.SubsitesDuration.Milliseconds())

	logger.Info("Throughput",
		"lists_processed", m.ListsProcessed,
		"items_processed", m.ItemsProcessed,
		"items_with_unique", m.ItemsWithUniquePerms,
		"groups_expanded", m.GroupsExpanded,
		"members_resolved", m.MembersResolved,
		"processing_rate_items_per_sec", m.AverageProcessingRate,
		"errors", m.ErrorsEncountered)
}
