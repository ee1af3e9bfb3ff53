package handlers

import (
	"errors"
	"net/http"

	"github.com/propdesk/propdesk/internal/backup"
)

type BackupsHandler struct {
	mgr *backup.Manager
}

func NewBackupsHandler(mgr *backup.Manager) *BackupsHandler {
	return &BackupsHandler{mgr: mgr}
}

func (h *BackupsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.mgr.List()
	if err != nil {
		writeStoreError(w, "backups", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Run takes a backup synchronously and returns its manifest.
func (h *BackupsHandler) Run(w http.ResponseWriter, r *http.Request) {
	man, err := h.mgr.Run()
	if errors.Is(err, backup.ErrRunning) {
		writeError(w, http.StatusConflict, "a backup is already running")
		return
	}
	if err != nil {
		writeStoreError(w, "backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, man)
}
