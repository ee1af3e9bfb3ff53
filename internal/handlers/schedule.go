package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/query"
)

// ScheduleHandler serves appointments and tasks.
type ScheduleHandler struct {
	db  *database.DB
	pub Publisher
}

func NewScheduleHandler(db *database.DB, pub Publisher) *ScheduleHandler {
	return &ScheduleHandler{db: db, pub: pub}
}

func (h *ScheduleHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.db.ListAppointments()
	if err != nil {
		writeStoreError(w, "appointments", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(appts, query.AppointmentTable, query.ParseFilter(q, query.AppointmentTable), query.ParseSort(q)))
}

func (h *ScheduleHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var a models.Appointment
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.ID = ""
	a.RemindedAt = nil
	if strings.TrimSpace(a.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if a.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "starts_at is required")
		return
	}
	if !a.EndsAt.IsZero() && a.EndsAt.Before(a.StartsAt) {
		writeError(w, http.StatusBadRequest, "ends_at must not be before starts_at")
		return
	}
	if err := h.db.CreateAppointment(&a); err != nil {
		writeStoreError(w, "appointment", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "appointment_created", "appointments", "appointment", a.ID, a.Title)
	writeJSON(w, http.StatusCreated, a)
}

func (h *ScheduleHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := h.db.GetAppointment(id)
	if err != nil {
		writeStoreError(w, "appointment", err)
		return
	}
	if err := decodeJSON(r, a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.ID = id
	if a.EndsAt.Before(a.StartsAt) {
		writeError(w, http.StatusBadRequest, "ends_at must not be before starts_at")
		return
	}
	if err := h.db.UpdateAppointment(a); err != nil {
		writeStoreError(w, "appointment", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "appointment_updated", "appointments", "appointment", a.ID, a.Title)
	writeJSON(w, http.StatusOK, a)
}

func (h *ScheduleHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.db.DeleteAppointment(id); err != nil {
		writeStoreError(w, "appointment", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "appointment_deleted", "appointments", "appointment", id, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "appointment deleted"})
}

func (h *ScheduleHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.db.ListTasks()
	if err != nil {
		writeStoreError(w, "tasks", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(tasks, query.TaskTable, query.ParseFilter(q, query.TaskTable), query.ParseSort(q)))
}

func (h *ScheduleHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var t models.Task
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.ID = ""
	t.Source = "manual"
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := h.db.CreateTask(&t); err != nil {
		writeStoreError(w, "task", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "task_created", "tasks", "task", t.ID, t.Title)
	h.pub.Publish(models.EventTaskCreated, t)
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTask changes a task's status (open, in_progress, done).
func (h *ScheduleHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case "open", "in_progress", "done":
	default:
		writeError(w, http.StatusBadRequest, "status must be open, in_progress or done")
		return
	}
	if err := h.db.UpdateTaskStatus(id, req.Status); err != nil {
		writeStoreError(w, "task", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "task_updated", "tasks", "task", id, req.Status)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}
