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

type PropertiesHandler struct {
	db  *database.DB
	pub Publisher
	ai  *llm.Services
}

func NewPropertiesHandler(db *database.DB, pub Publisher, ai *llm.Services) *PropertiesHandler {
	return &PropertiesHandler{db: db, pub: pub, ai: ai}
}

func (h *PropertiesHandler) List(w http.ResponseWriter, r *http.Request) {
	props, err := h.db.ListProperties()
	if err != nil {
		writeStoreError(w, "properties", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(props, query.PropertyTable, query.ParseFilter(q, query.PropertyTable), query.ParseSort(q)))
}

func (h *PropertiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProperty(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "property", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PropertiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p models.Property
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = ""
	p.Address = strings.TrimSpace(p.Address)
	if p.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if p.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}
	if err := h.db.CreateProperty(&p); err != nil {
		writeStoreError(w, "property", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "property_created", "properties", "property", p.ID, p.Address)
	writeJSON(w, http.StatusCreated, p)
}

func (h *PropertiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.db.GetProperty(id)
	if err != nil {
		writeStoreError(w, "property", err)
		return
	}
	if err := decodeJSON(r, p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.ID = id
	if err := h.db.UpdateProperty(p); err != nil {
		writeStoreError(w, "property", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "property_updated", "properties", "property", p.ID, p.Address)
	writeJSON(w, http.StatusOK, p)
}

func (h *PropertiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.db.DeleteProperty(id); err != nil {
		writeStoreError(w, "property", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "property_deleted", "properties", "property", id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "property deleted"})
}

// GenerateDescription writes a listing description with the model. The text
// is returned and only stored when ?save=true.
func (h *PropertiesHandler) GenerateDescription(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProperty(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "property", err)
		return
	}

	desc := h.ai.GeneratePropertyDescription(r.Context(), *p)
	if r.URL.Query().Get("save") == "true" {
		p.Description = desc
		if err := h.db.UpdateProperty(p); err != nil {
			writeStoreError(w, "property", err)
			return
		}
		h.db.LogAudit(middleware.GetUserID(r.Context()), "description_generated", "properties", "property", p.ID, p.Address)
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
}

// Inquiry records interest in a listing. Without a lead_id a new lead is
// created from the contact details.
func (h *PropertiesHandler) Inquiry(w http.ResponseWriter, r *http.Request) {
	p, err := h.db.GetProperty(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "property", err)
		return
	}

	var req struct {
		LeadID  string `json:"lead_id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.LeadID != "" {
		lead, err := h.db.GetLead(req.LeadID)
		if err != nil {
			writeStoreError(w, "lead", err)
			return
		}
		if req.Name == "" {
			req.Name = lead.Name
		}
	} else {
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		lead := models.Lead{
			Name:              strings.TrimSpace(req.Name),
			Email:             req.Email,
			Phone:             req.Phone,
			Source:            "property_inquiry",
			PreferredLocation: p.City,
			PropertyType:      p.PropertyType,
			Notes:             req.Message,
		}
		if err := h.db.CreateLead(&lead); err != nil {
			writeStoreError(w, "lead", err)
			return
		}
		req.LeadID = lead.ID
		h.pub.Publish(models.EventNewLead, lead)
	}

	inquiry := models.WSPropertyInquiry{
		PropertyID:      p.ID,
		PropertyAddress: p.Address,
		LeadID:          req.LeadID,
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Message:         req.Message,
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "property_inquiry", "properties", "property", p.ID, req.Name)
	h.pub.Publish(models.EventPropertyInquiry, inquiry)
	writeJSON(w, http.StatusCreated, inquiry)
}
