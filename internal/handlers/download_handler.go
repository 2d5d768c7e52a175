package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fecview/internal/downloads"
)

// DownloadManager is the download job registry as seen by the HTTP layer
type DownloadManager interface {
	Download(ctx context.Context, sourceURL string, force bool) (*downloads.Job, error)
	Close(ctx context.Context, sourceURL string) error
	List() []downloads.Item
}

type DownloadHandler struct {
	manager DownloadManager
	logger  arbor.ILogger
}

func NewDownloadHandler(manager DownloadManager, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		manager: manager,
		logger:  logger,
	}
}

// CreateDownloadRequest starts a download for the export URL of a table
type CreateDownloadRequest struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

// ListHandler returns the live downloads
func (h *DownloadHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"downloads": h.manager.List(),
	})
}

// CreateHandler starts tracking a download. A URL with a stored record is only
// re-initialized when force is set; otherwise the response reports it as existing.
func (h *DownloadHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req CreateDownloadRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := h.manager.Download(r.Context(), req.URL, req.Force)
	if errors.Is(err, downloads.ErrTooManyDownloads) {
		WriteError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("url", req.URL).Msg("Failed to start download")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if job.Existing() && !req.Force {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"existing": true,
			"download": job.Item(),
		})
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"existing": false,
		"download": job.Item(),
	})
}

// CloseHandler stops a download and forgets it; the URL is passed as ?url=
func (h *DownloadHandler) CloseHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	err := h.manager.Close(r.Context(), sourceURL)
	if errors.Is(err, downloads.ErrDownloadNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("url", sourceURL).Msg("Failed to close download")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, "Download closed")
}
