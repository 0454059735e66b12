package contracts

import (
	"context"
	"time"

	"spscan/domain/scan"
)

// ReportType identifies the kind of report handed to the sink.
const ReportTypeSiteScan = "site_scan"

// ReportFile is one finished CSV table handed to the archival sink.
type ReportFile struct {
	Name string // Table file name, e.g. "users.csv"
	Path string // Path in the staging filesystem
}

// ReportMetadata accompanies the archived files.
type ReportMetadata struct {
	SiteURL     string     `json:"site_url"`
	Scope       string     `json:"scope"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Stats       scan.Stats `json:"stats"`
}

// ReportSink archives completed scan output. The scanner core treats
// archival as opaque: files in, report ID out.
type ReportSink interface {
	CreateReport(ctx context.Context, reportType, name string, files []ReportFile, metadata ReportMetadata) (string, error)
}
