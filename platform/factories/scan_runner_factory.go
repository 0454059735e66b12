package factories

import (
	"fmt"

	"github.com/spf13/afero"

	"spscan/domain/contracts"
	"spscan/infrastructure/directory"
	"spscan/infrastructure/scanner"
	"spscan/infrastructure/spclient"
	"spscan/logging"
	"spscan/platform/executors"
	"spscan/spauth"
)

// ScanRunnerFactory builds scan orchestrators. The directory client,
// group cache and report sink are shared across scans; the SharePoint
// client is created per site because authentication is site-bound.
type ScanRunnerFactory struct {
	dir        directory.DirectoryClient
	cache      directory.GroupCache
	sink       contracts.ReportSink
	fs         afero.Fs
	stagingDir string
	logger     *logging.Logger
}

// NewScanRunnerFactory creates a new scan runner factory.
func NewScanRunnerFactory(
	dir directory.DirectoryClient,
	cache directory.GroupCache,
	sink contracts.ReportSink,
	fs afero.Fs,
	stagingDir string,
) *ScanRunnerFactory {
	return &ScanRunnerFactory{
		dir:        dir,
		cache:      cache,
		sink:       sink,
		fs:         fs,
		stagingDir: stagingDir,
		logger:     logging.Default().WithComponent("scan_runner_factory"),
	}
}

// CreateScanRunner implements executors.ScanRunnerFactory.
func (f *ScanRunnerFactory) CreateScanRunner(siteURL string) (executors.ScanRunner, error) {
	f.logger.Info("Creating scan runner", "siteURL", siteURL)

	siteClient, err := f.createSiteClient(siteURL)
	if err != nil {
		return nil, fmt.Errorf("create SharePoint client: %w", err)
	}

	return scanner.NewOrchestrator(siteClient, f.dir, f.cache, f.sink, f.fs, f.stagingDir), nil
}

// createSiteClient authenticates against the given site.
func (f *ScanRunnerFactory) createSiteClient(siteURL string) (spclient.SiteClient, error) {
	cfg, err := spauth.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("auth config error: %w", err)
	}
	cfg.SiteURL = siteURL

	client, err := spauth.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth client error: %w", err)
	}

	return spclient.NewSiteClient(client), nil
}
