package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/query"
)

const maxAudioSize = 25 << 20

type ConversationsHandler struct {
	db  *database.DB
	pub Publisher
	ai  *llm.Services
}

func NewConversationsHandler(db *database.DB, pub Publisher, ai *llm.Services) *ConversationsHandler {
	return &ConversationsHandler{db: db, pub: pub, ai: ai}
}

func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.db.ListConversations()
	if err != nil {
		writeStoreError(w, "conversations", err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, query.Apply(convs, query.ConversationTable, query.ParseFilter(q, query.ConversationTable), query.ParseSort(q)))
}

func (h *ConversationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.db.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var c models.Conversation
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c.ID = ""
	c.UnreadCount = 0
	c.LastMessage = ""
	if c.LeadID != "" && strings.TrimSpace(c.ContactName) == "" {
		if lead, err := h.db.GetLead(c.LeadID); err == nil {
			c.ContactName = lead.Name
		}
	}
	if strings.TrimSpace(c.ContactName) == "" {
		writeError(w, http.StatusBadRequest, "contact_name or lead_id is required")
		return
	}
	if err := h.db.CreateConversation(&c); err != nil {
		writeStoreError(w, "conversation", err)
		return
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "conversation_created", "conversations", "conversation", c.ID, c.ContactName)
	writeJSON(w, http.StatusCreated, c)
}

// Messages lists a conversation's messages oldest first and clears its
// unread counter.
func (h *ConversationsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.db.MarkConversationRead(id); err != nil {
		writeStoreError(w, "conversation", err)
		return
	}
	msgs, err := h.db.ListMessages(id)
	if err != nil {
		writeStoreError(w, "messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage stores a message. Inbound messages are screened by moderation
// and mined for follow-up tasks.
func (h *ConversationsHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conv, err := h.db.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "conversation", err)
		return
	}

	var req struct {
		Sender    string `json:"sender"`
		Direction string `json:"direction"`
		Body      string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		writeError(w, http.StatusBadRequest, "body is required")
		return
	}
	switch req.Direction {
	case "":
		req.Direction = "outbound"
	case "inbound", "outbound":
	default:
		writeError(w, http.StatusBadRequest, "direction must be inbound or outbound")
		return
	}
	if req.Sender == "" {
		if req.Direction == "inbound" {
			req.Sender = conv.ContactName
		} else {
			req.Sender = middleware.GetUsername(r.Context())
		}
	}

	msg := models.Message{
		ConversationID: conv.ID,
		Sender:         req.Sender,
		Direction:      req.Direction,
		Body:           req.Body,
	}
	inbound := msg.Direction == "inbound"
	if inbound {
		mod := h.ai.Moderate(r.Context(), msg.Body)
		msg.Flagged = mod.Flagged
		if mod.Flagged {
			logger.Warn("Message in conversation %s flagged: %s", conv.ID, strings.Join(mod.Categories, ", "))
		}
	}
	if err := h.db.AddMessage(&msg); err != nil {
		writeStoreError(w, "conversation", err)
		return
	}
	h.pub.Publish(models.EventNewMessage, msg)

	tasks := []models.Task{}
	if inbound && !msg.Flagged {
		tasks = h.createTasks(r.Context(), conv, h.ai.ExtractTasks(r.Context(), msg.Body))
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": msg,
		"tasks":   tasks,
	})
}

// Transcribe accepts a recorded call, stores its summary in the conversation
// and turns the action items into tasks.
func (h *ConversationsHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	conv, err := h.db.GetConversation(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "conversation", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioSize)
	if err := r.ParseMultipartForm(maxAudioSize); err != nil {
		writeError(w, http.StatusBadRequest, "audio too large (max 25MB)")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	tr := h.ai.TranscribeAndSummarize(r.Context(), file, header.Filename)

	tasks := []models.Task{}
	if tr.Text != "" {
		msg := models.Message{
			ConversationID: conv.ID,
			Sender:         "Call transcript",
			Direction:      "outbound",
			Body:           tr.Summary + "\n\n" + tr.Text,
		}
		if err := h.db.AddMessage(&msg); err != nil {
			writeStoreError(w, "conversation", err)
			return
		}
		h.pub.Publish(models.EventNewMessage, msg)

		items := make([]llm.ExtractedTask, 0, len(tr.ActionItems))
		for _, item := range tr.ActionItems {
			items = append(items, llm.ExtractedTask{Title: item, Priority: "medium"})
		}
		tasks = h.createTasks(r.Context(), conv, items)
	}

	h.db.LogAudit(middleware.GetUserID(r.Context()), "call_transcribed", "conversations", "conversation", conv.ID, header.Filename)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transcript": tr,
		"tasks":      tasks,
	})
}

func (h *ConversationsHandler) createTasks(ctx context.Context, conv *models.Conversation, extracted []llm.ExtractedTask) []models.Task {
	created := []models.Task{}
	for _, e := range extracted {
		if ctx.Err() != nil {
			break
		}
		t := models.Task{
			Title:          e.Title,
			Priority:       e.Priority,
			Source:         "ai",
			LeadID:         conv.LeadID,
			ConversationID: conv.ID,
		}
		if due, err := time.Parse("2006-01-02", e.DueDate); err == nil {
			t.DueAt = &due
		}
		if err := h.db.CreateTask(&t); err != nil {
			logger.Error("Failed to store extracted task: %v", err)
			continue
		}
		h.pub.Publish(models.EventTaskCreated, t)
		created = append(created, t)
	}
	return created
}
