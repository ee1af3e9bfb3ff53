package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/logger"
)

// Publisher sends a domain event to live clients.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps a storage error to a response. ErrNotFound becomes a
// 404 naming what was looked up; anything else is logged and hidden.
func writeStoreError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	logger.Error("%s: %v", what, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1MB limit
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
