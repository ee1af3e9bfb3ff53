package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/query"
)

type LeadsHandler struct {
	db  *database.DB
	pub Publisher
	ai  *llm.Services
}

func NewLeadsHandler(db *database.DB, pub Publisher, ai *llm.Services) *LeadsHandler {
	return &LeadsHandler{db: db, pub: pub, ai: ai}
}

// List returns leads filtered and sorted by the query string.
func (h *LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.db.ListLeads()
	if err != nil {
		writeStoreError(w, "leads", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(leads, query.LeadTable, query.ParseFilter(q, query.LeadTable), query.ParseSort(q)))
}

func (h *LeadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	lead, err := h.db.GetLead(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "lead", err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if err := decodeJSON(r, &lead); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead.ID = ""
	lead.Name = strings.TrimSpace(lead.Name)
	if lead.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.db.CreateLead(&lead); err != nil {
		writeStoreError(w, "lead", err)
		return
	}

	h.db.LogAudit(middleware.GetUserID(r.Context()), "lead_created", "leads", "lead", lead.ID, lead.Name)
	h.pub.Publish(models.EventNewLead, lead)
	writeJSON(w, http.StatusCreated, lead)
}

// Update merges the request body over the stored lead, so omitted fields keep
// their current values.
func (h *LeadsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lead, err := h.db.GetLead(id)
	if err != nil {
		writeStoreError(w, "lead", err)
		return
	}
	if err := decodeJSON(r, lead); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead.ID = id
	if err := h.db.UpdateLead(lead); err != nil {
		writeStoreError(w, "lead", err)
		return
	}

	h.db.LogAudit(middleware.GetUserID(r.Context()), "lead_updated", "leads", "lead", lead.ID, lead.Name)
	h.pub.Publish(models.EventLeadUpdated, lead)
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.db.DeleteLead(id); err != nil {
		writeStoreError(w, "lead", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "lead_deleted", "leads", "lead", id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "lead deleted"})
}

// Qualify scores the lead with the model and stores the result. When the
// model is unavailable the neutral fallback score is stored instead.
func (h *LeadsHandler) Qualify(w http.ResponseWriter, r *http.Request) {
	lead, err := h.db.GetLead(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "lead", err)
		return
	}

	q := h.ai.QualifyLead(r.Context(), *lead)
	lead.Score = q.Score
	lead.Status = q.Status
	lead.Tags = mergeTags(lead.Tags, q.Tags)
	if err := h.db.UpdateLead(lead); err != nil {
		writeStoreError(w, "lead", err)
		return
	}

	h.db.LogAudit(middleware.GetUserID(r.Context()), "lead_qualified", "leads", "lead", lead.ID, q.Status)
	h.pub.Publish(models.EventLeadUpdated, lead)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lead":          lead,
		"qualification": q,
	})
}

func mergeTags(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, list := range [][]string{have, add} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
