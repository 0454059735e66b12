package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"spscan/domain/contracts"
	"spscan/logging"
)

// FilesystemRegistry stores one JSON record per site under a base
// directory, keyed by site ID.
type FilesystemRegistry struct {
	fs      afero.Fs
	baseDir string
	logger  *logging.Logger
}

// NewFilesystemRegistry creates a registry rooted at baseDir.
func NewFilesystemRegistry(fs afero.Fs, baseDir string) *FilesystemRegistry {
	return &FilesystemRegistry{
		fs:      fs,
		baseDir: baseDir,
		logger:  logging.Default().WithComponent("site_registry"),
	}
}

func (r *FilesystemRegistry) recordPath(siteID string) string {
	return filepath.Join(r.baseDir, siteID+".json")
}

// Get loads the record for a site ID.
func (r *FilesystemRegistry) Get(ctx context.Context, siteID string) (*contracts.SiteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(r.fs, r.recordPath(siteID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("site %s: %w", siteID, contracts.ErrSiteNotFound)
		}
		return nil, fmt.Errorf("read site record %s: %w", siteID, err)
	}

	var record contracts.SiteRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode site record %s: %w", siteID, err)
	}
	return &record, nil
}

// Put stores or replaces a site record keyed by its ID.
func (r *FilesystemRegistry) Put(ctx context.Context, record *contracts.SiteRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		return fmt.Errorf("site record requires an id")
	}

	if err := r.fs.MkdirAll(r.baseDir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode site record %s: %w", record.ID, err)
	}
	if err := afero.WriteFile(r.fs, r.recordPath(record.ID), data, 0o644); err != nil {
		return fmt.Errorf("write site record %s: %w", record.ID, err)
	}
	return nil
}

// List returns all registered sites sorted by ID.
func (r *FilesystemRegistry) List(ctx context.Context) ([]*contracts.SiteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(r.fs, r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry dir: %w", err)
	}

	var records []*contracts.SiteRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		siteID := strings.TrimSuffix(entry.Name(), ".json")
		record, err := r.Get(ctx, siteID)
		if err != nil {
			r.logger.Warn("Skipping unreadable site record", "site_id", siteID, "error", err.Error())
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}
