package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gezin/internal/backup"
)

// BackupService is the part of backup.Manager the HTTP layer uses.
type BackupService interface {
	Status() backup.Status
	RunNow(ctx context.Context) (backup.Object, error)
	List(ctx context.Context) ([]backup.Object, error)
}

type BackupHandler struct {
	backups BackupService
	logger  *slog.Logger
}

func NewBackupHandler(backups BackupService, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{backups: backups, logger: logger}
}

func (h *BackupHandler) Register(mux *http.ServeMux, base string) {
	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Run)
	mux.HandleFunc("GET "+base+"/status", h.Status)
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups.Status())
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	objects, err := h.backups.List(r.Context())
	if errors.Is(err, backup.ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "failed to list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

// Run starts a backup and waits for it to finish.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	obj, err := h.backups.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, backup.ErrRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		internalError(w, r, h.logger, "backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}
