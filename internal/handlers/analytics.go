package handlers

import (
	"net/http"
	"time"

	"github.com/propdesk/propdesk/internal/database"
)

type AnalyticsHandler struct {
	db *database.DB
}

func NewAnalyticsHandler(db *database.DB) *AnalyticsHandler {
	return &AnalyticsHandler{db: db}
}

func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Dashboard(time.Now())
	if err != nil {
		writeStoreError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AnalyticsHandler) Leads(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.LeadAnalytics()
	if err != nil {
		writeStoreError(w, "lead analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AnalyticsHandler) Sales(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.SalesAnalytics()
	if err != nil {
		writeStoreError(w, "sales analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
