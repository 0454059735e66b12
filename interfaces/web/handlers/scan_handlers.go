package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"spscan/application"
	"spscan/domain/contracts"
	"spscan/domain/scan"
	"spscan/logging"
)

// ScanHandlers handles HTTP requests for scan operations.
type ScanHandlers struct {
	scanService application.ScanService
	logger      *logging.Logger
}

// NewScanHandlers creates a new scan handlers instance.
func NewScanHandlers(scanService application.ScanService) *ScanHandlers {
	return &ScanHandlers{
		scanService: scanService,
		logger:      logging.Default().WithComponent("scan_handler"),
	}
}

// scanRequestBody is the JSON trigger payload. SiteID comes from the
// URL, not the body.
type scanRequestBody struct {
	Scope                  scan.Scope       `json:"scope"`
	IncludeSubsites        bool             `json:"include_subsites"`
	ForceCacheInvalidation bool             `json:"force_cache_invalidation"`
	Parameters             *scan.Parameters `json:"parameters,omitempty"`
}

// StartScan queues a new scan for a site.
// POST /api/sites/{siteID}/scans
func (h *ScanHandlers) StartScan(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "missing site ID")
		return
	}

	body := scanRequestBody{Scope: scan.ScopeAll}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.logger.Error("Failed to decode scan request", "site_id", siteID, "error", err)
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	request := scan.Request{
		SiteID:                 siteID,
		Scope:                  body.Scope,
		IncludeSubsites:        body.IncludeSubsites,
		ForceCacheInvalidation: body.ForceCacheInvalidation,
		Parameters:             body.Parameters,
	}

	job, err := h.scanService.StartScan(r.Context(), request)
	if err != nil {
		h.logger.Error("Failed to start scan", "site_id", siteID, "error", err)

		switch {
		case errors.Is(err, scan.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, contracts.ErrSiteNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case strings.Contains(err.Error(), "already running"):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.logger.Info("Scan queued", "site_id", siteID, "job_id", job.ID)
	writeJSON(w, http.StatusAccepted, formatJob(job))
}

// GetScanStatus retrieves the active scan for a site.
// GET /api/sites/{siteID}/scan
func (h *ScanHandlers) GetScanStatus(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "missing site ID")
		return
	}

	job, exists := h.scanService.GetScanStatus(siteID)
	if !exists {
		writeError(w, http.StatusNotFound, "no scan found for site")
		return
	}

	writeJSON(w, http.StatusOK, formatJob(job))
}

// CancelScan cancels the active scan for a site.
// DELETE /api/sites/{siteID}/scan
func (h *ScanHandlers) CancelScan(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "missing site ID")
		return
	}

	if err := h.scanService.CancelScan(siteID); err != nil {
		h.logger.Error("Failed to cancel scan", "site_id", siteID, "error", err)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info("Scan cancellation requested", "site_id", siteID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ListActiveScans returns all currently running scans.
// GET /api/scans/active
func (h *ScanHandlers) ListActiveScans(w http.ResponseWriter, r *http.Request) {
	scans := h.scanService.GetActiveScans()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scans": formatJobs(scans),
		"count": len(scans),
	})
}

// GetScanHistory returns recent terminal scan runs, newest first.
// GET /api/scans/history?limit=N
func (h *ScanHandlers) GetScanHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	runs, err := h.scanService.GetScanHistory(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load scan history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load scan history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
