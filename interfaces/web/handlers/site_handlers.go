package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"spscan/domain/contracts"
	"spscan/logging"
)

// SiteHandlers handles HTTP requests for the site registry.
type SiteHandlers struct {
	registry contracts.SiteRegistry
	logger   *logging.Logger
}

// NewSiteHandlers creates a new site handlers instance.
func NewSiteHandlers(registry contracts.SiteRegistry) *SiteHandlers {
	return &SiteHandlers{
		registry: registry,
		logger:   logging.Default().WithComponent("site_handler"),
	}
}

// ListSites returns all registered sites.
// GET /api/sites
func (h *SiteHandlers) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sites", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sites": sites,
		"count": len(sites),
	})
}

// GetSite returns one registered site.
// GET /api/sites/{siteID}
func (h *SiteHandlers) GetSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "missing site ID")
		return
	}

	site, err := h.registry.Get(r.Context(), siteID)
	if err != nil {
		if errors.Is(err, contracts.ErrSiteNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Failed to load site", "site_id", siteID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load site")
		return
	}

	writeJSON(w, http.StatusOK, site)
}

// RegisterSite stores or replaces a site record.
// PUT /api/sites/{siteID}
func (h *SiteHandlers) RegisterSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "missing site ID")
		return
	}

	var record contracts.SiteRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	record.ID = siteID
	record.URL = strings.TrimRight(strings.TrimSpace(record.URL), "/")
	if record.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !strings.HasPrefix(record.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be an https URL")
		return
	}

	if err := h.registry.Put(r.Context(), &record); err != nil {
		h.logger.Error("Failed to store site record", "site_id", siteID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store site record")
		return
	}

	h.logger.Info("Site registered", "site_id", siteID, "url", record.URL)
	writeJSON(w, http.StatusOK, record)
}
