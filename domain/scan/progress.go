package scan

// ProgressReporter defines the interface for reporting scan progress.
//
// Emission contract: implementations must return only after the event
// has been handed to the streaming transport, and callers must follow
// each emission with an explicit yield to the scheduler. A scan is a
// long chain of blocking remote calls; relying on those calls to
// create yield points buffers events until scan completion under a
// real streaming client.
type ProgressReporter interface {
	// ReportProgress reports the current stage of the scan.
	ReportProgress(stage, description string, percentage int)

	// ReportItemProgress reports progress with item counts.
	ReportItemProgress(stage, description string, percentage, itemsDone, itemsTotal int)
}

// NoOpProgressReporter is a no-op implementation for when progress
// reporting is not needed.
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) ReportProgress(stage, description string, percentage int) {}

func (n *NoOpProgressReporter) ReportItemProgress(stage, description string, percentage, itemsDone, itemsTotal int) {
}

// NewNoOpProgressReporter creates a new no-op progress reporter.
func NewNoOpProgressReporter() ProgressReporter {
	return &NoOpProgressReporter{}
}

// ProgressStages defines standard progress stages for consistency.
type ProgressStages struct {
	Connecting   string
	Groups       string
	Structure    string
	Items        string
	Subsites     string
	Finalization string
}

// StandardStages provides consistent stage names.
var StandardStages = ProgressStages{
	Connecting:   "Connecting",
	Groups:       "Scanning Groups",
	Structure:    "Scanning Structure",
	Items:        "Scanning Items",
	Subsites:     "Scanning Subsites",
	Finalization: "Finalization",
}
