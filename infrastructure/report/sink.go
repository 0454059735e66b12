package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"spscan/domain/contracts"
	"spscan/logging"
)

// FilesystemSink archives completed reports under a base directory:
// one uuid-named directory per report holding the table files plus a
// metadata.json.
type FilesystemSink struct {
	fs      afero.Fs
	baseDir string
	logger  *logging.Logger
}

// NewFilesystemSink creates a sink rooted at baseDir on the given
// filesystem.
func NewFilesystemSink(fs afero.Fs, baseDir string) *FilesystemSink {
	return &FilesystemSink{
		fs:      fs,
		baseDir: baseDir,
		logger:  logging.Default().WithComponent("report_sink"),
	}
}

// CreateReport copies the staged files into a new report directory and
// writes the metadata file. Returns the generated report ID.
func (s *FilesystemSink) CreateReport(ctx context.Context, reportType, name string, files []contracts.ReportFile, metadata contracts.ReportMetadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reportID := uuid.NewString()
	reportDir := filepath.Join(s.baseDir, reportID)
	if err := s.fs.MkdirAll(reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	for _, f := range files {
		if err := s.copyFile(f.Path, filepath.Join(reportDir, f.Name)); err != nil {
			_ = s.fs.RemoveAll(reportDir)
			return "", fmt.Errorf("archive %s: %w", f.Name, err)
		}
	}

	meta, err := json.MarshalIndent(struct {
		ReportType string `json:"report_type"`
		Name       string `json:"name"`
		contracts.ReportMetadata
	}{reportType, name, metadata}, "", "  ")
	if err != nil {
		_ = s.fs.RemoveAll(reportDir)
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(reportDir, "metadata.json"), meta, 0o644); err != nil {
		_ = s.fs.RemoveAll(reportDir)
		return "", fmt.Errorf("write metadata: %w", err)
	}

	s.logger.Info("Report archived",
		"report_id", reportID, "report_type", reportType, "name", name, "files", len(files))
	return reportID, nil
}

func (s *FilesystemSink) copyFile(src, dst string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
