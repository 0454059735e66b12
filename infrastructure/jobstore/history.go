package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spscan/database"
	"spscan/domain/contracts"
	"spscan/logging"
)

// SqliteScanHistory persists finished scans into the scan_runs table.
type SqliteScanHistory struct {
	db     *database.Database
	logger *logging.Logger
}

// NewSqliteScanHistory creates a history store over the shared database.
func NewSqliteScanHistory(db *database.Database) contracts.ScanHistory {
	return &SqliteScanHistory{
		db:     db,
		logger: logging.Default().WithComponent("scan_history"),
	}
}

func (h *SqliteScanHistory) RecordRun(ctx context.Context, record *contracts.ScanRunRecord) error {
	_, err := h.db.WriteDB().ExecContext(ctx, `
		INSERT INTO scan_runs (
			job_id, site_url, scope, status, report_id,
			objects_scanned, groups_found, users_found, broken_inheritance,
			subsites_scanned, cache_hits, cache_misses, errors,
			started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.JobID, record.SiteURL, record.Scope, record.Status, record.ReportID,
		record.Stats.ObjectsScanned, record.Stats.GroupsFound, record.Stats.UsersFound,
		record.Stats.BrokenInheritance, record.Stats.SubsitesScanned,
		record.Stats.CacheHits, record.Stats.CacheMisses, record.Stats.Errors,
		record.StartedAt, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record scan run for job %s: %w", record.JobID, err)
	}

	h.logger.Info("Scan run recorded",
		"job_id", record.JobID, "site_url", record.SiteURL, "status", record.Status)
	return nil
}

func (h *SqliteScanHistory) LastCompletedScan(ctx context.Context, siteURL string) (*time.Time, error) {
	var completed sql.NullTime
	err := h.db.ReadDB().QueryRowContext(ctx, `
		SELECT completed_at FROM scan_runs
		WHERE site_url = ? AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1`, siteURL).Scan(&completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last completed scan for %s: %w", siteURL, err)
	}
	if !completed.Valid {
		return nil, nil
	}
	return &completed.Time, nil
}

func (h *SqliteScanHistory) ListRuns(ctx context.Context, limit int) ([]*contracts.ScanRunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.ReadDB().QueryContext(ctx, `
		SELECT job_id, site_url, scope, status, COALESCE(report_id, ''),
			objects_scanned, groups_found, users_found, broken_inheritance,
			subsites_scanned, cache_hits, cache_misses, errors,
			started_at, completed_at
		FROM scan_runs
		ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan runs: %w", err)
	}
	defer rows.Close()

	var records []*contracts.ScanRunRecord
	for rows.Next() {
		r := &contracts.ScanRunRecord{}
		err := rows.Scan(
			&r.JobID, &r.SiteURL, &r.Scope, &r.Status, &r.ReportID,
			&r.Stats.ObjectsScanned, &r.Stats.GroupsFound, &r.Stats.UsersFound,
			&r.Stats.BrokenInheritance, &r.Stats.SubsitesScanned,
			&r.Stats.CacheHits, &r.Stats.CacheMisses, &r.Stats.Errors,
			&r.StartedAt, &r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
