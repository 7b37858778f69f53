package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/codepocket/internal/apperror"
	synceng "github.com/sakif/codepocket/internal/sync"
)

// SyncEngine is the part of the sync engine the HTTP API drives.
type SyncEngine interface {
	Status(ctx context.Context) (*synceng.Status, error)
	Upload(ctx context.Context) (*synceng.UploadResult, error)
	Pull(ctx context.Context, c synceng.Confirmer) (*synceng.PullResult, error)
	SetAutoSync(ctx context.Context, enabled bool) error
}

// SyncHandler exposes manual sync and the auto-sync toggle.
type SyncHandler struct {
	engine SyncEngine
	logger *slog.Logger
}

func NewSyncHandler(engine SyncEngine, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, logger: logger}
}

// HandleStatus → GET /api/sync/status
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleUpload → POST /api/sync/upload
func (h *SyncHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Upload(r.Context())
	if err != nil {
		h.logger.Warn("manual upload failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDownload pulls the backup and applies it.
//
// HTTP: POST /api/sync/download?mode=merge|replace
//
// Over HTTP there is nobody to ask, so the caller must choose the mode up
// front.
func (h *SyncHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	decision, ok := synceng.ParseDecision(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, apperror.ValidationFailed("mode", `mode must be "merge" or "replace"`))
		return
	}
	res, err := h.engine.Pull(r.Context(), synceng.StaticDecision(decision))
	if err != nil {
		h.logger.Warn("pull failed",
			slog.String("mode", decision.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type autoSyncRequest struct {
	Enabled *bool `json:"enabled"`
}

// HandleAutoSync → PUT /api/sync/auto {"enabled":true}
func (h *SyncHandler) HandleAutoSync(w http.ResponseWriter, r *http.Request) {
	var req autoSyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, apperror.ValidationFailed("enabled", "enabled is required"))
		return
	}
	if err := h.engine.SetAutoSync(r.Context(), *req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}
