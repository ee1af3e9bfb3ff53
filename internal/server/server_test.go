package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/propdesk/propdesk/internal/auth"
	"github.com/propdesk/propdesk/internal/backup"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/metrics"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/propdesk/propdesk/internal/secrets"
	ws "github.com/propdesk/propdesk/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// fakeModel answers chat completions based on which prompt it receives.
func fakeModel(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		content := `{}`
		switch system := req.Messages[0].Content; {
		case strings.Contains(system, "qualification"):
			content = `{"score": 88, "status": "hot", "tags": ["pre-approved"], "reasoning": "Ready to buy"}`
		case strings.Contains(system, "follow-up tasks"):
			content = `{"tasks": [{"title": "Send comps for Oak St", "due_date": "2025-07-01", "priority": "high"}]}`
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	})
	mux.HandleFunc("/moderations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"flagged": false, "categories": {}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	srv     *Server
	pub     *recordingPublisher
	db      *database.DB
	metrics *metrics.Metrics
	box     *secrets.Box
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authSvc := auth.NewService("test-secret")
	model := fakeModel(t)
	client := llm.NewClient(model.URL, "sk-test", "")
	pub := &recordingPublisher{}
	m := metrics.New()
	box, err := secrets.NewBox("test-encryption-key")
	require.NoError(t, err)

	s := New(Config{
		DB:        db,
		Auth:      authSvc,
		Hub:       ws.NewHub(authSvc, nil),
		Metrics:   m,
		Publisher: pub,
		LLMClient: client,
		LLM:       llm.NewServices(client),
		Secrets:   box,
		Backups:   backup.New(db, dir, "test", 3),
		DataDir:   dir,
		Port:      41700,
	})
	return &testEnv{srv: s, pub: pub, db: db, metrics: m, box: box}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// setup creates the admin account and keeps its token for later requests.
func (e *testEnv) setup(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/setup/init", map[string]string{
		"username": "agent", "password": "Passw0rd1", "display_name": "Alex Agent",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[struct {
		Token string `json:"token"`
	}](t, rec)
	require.NotEmpty(t, resp.Token)
	e.token = resp.Token
}

// --- Auth ---

func TestSetupAndLogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/setup/status", nil)
	assert.Equal(t, map[string]bool{"needs_setup": true}, decode[map[string]bool](t, rec))

	weak := e.do(t, http.MethodPost, "/api/v1/setup/init", map[string]string{"username": "agent", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, weak.Code)

	e.setup(t)

	again := e.do(t, http.MethodPost, "/api/v1/setup/init", map[string]string{"username": "x", "password": "Passw0rd1"})
	assert.Equal(t, http.StatusConflict, again.Code)

	e.token = ""
	bad := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "agent", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	ok := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "agent", "password": "Passw0rd1"})
	require.Equal(t, http.StatusOK, ok.Code)
	login := decode[struct {
		Token     string      `json:"token"`
		ExpiresAt time.Time   `json:"expires_at"`
		User      models.User `json:"user"`
	}](t, ok)
	assert.Equal(t, "Alex Agent", login.User.DisplayName)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), login.ExpiresAt, time.Minute)

	long := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]interface{}{"username": "agent", "password": "Passw0rd1", "remember_me": true})
	require.Equal(t, http.StatusOK, long.Code)
	remembered := decode[struct {
		ExpiresAt time.Time `json:"expires_at"`
	}](t, long)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), remembered.ExpiresAt, time.Minute)

	e.token = login.Token
	me := e.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"agent"`)
	assert.NotContains(t, me.Body.String(), "password")
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	wrong := e.do(t, http.MethodPut, "/api/v1/auth/password", map[string]string{"current_password": "nope", "new_password": "N3wPassword"})
	assert.Equal(t, http.StatusForbidden, wrong.Code)
	weak := e.do(t, http.MethodPut, "/api/v1/auth/password", map[string]string{"current_password": "Passw0rd1", "new_password": "weak"})
	assert.Equal(t, http.StatusBadRequest, weak.Code)
	ok := e.do(t, http.MethodPut, "/api/v1/auth/password", map[string]string{"current_password": "Passw0rd1", "new_password": "N3wPassword"})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	e.token = ""
	old := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "agent", "password": "Passw0rd1"})
	assert.Equal(t, http.StatusUnauthorized, old.Code)
	fresh := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "agent", "password": "N3wPassword"})
	assert.Equal(t, http.StatusOK, fresh.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/leads", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

// --- Leads ---

func TestLeadLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	missing := e.do(t, http.MethodPost, "/api/v1/leads", map[string]interface{}{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	for _, lead := range []map[string]interface{}{
		{"name": "John Smith", "email": "john@example.com", "score": 40, "tags": []string{"investor"}},
		{"name": "Jane Doe", "email": "jane@example.com", "score": 75},
		{"name": "Bob Smithers", "score": 90},
	} {
		rec := e.do(t, http.MethodPost, "/api/v1/leads", lead)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	assert.Equal(t, []string{models.EventNewLead, models.EventNewLead, models.EventNewLead}, e.pub.types())

	list := decode[[]models.Lead](t, e.do(t, http.MethodGet, "/api/v1/leads?search=smith&sort=score&dir=desc", nil))
	require.Len(t, list, 2)
	assert.Equal(t, "Bob Smithers", list[0].Name)
	assert.Equal(t, "John Smith", list[1].Name)

	ranged := decode[[]models.Lead](t, e.do(t, http.MethodGet, "/api/v1/leads?score_range=50-80", nil))
	require.Len(t, ranged, 1)
	assert.Equal(t, "Jane Doe", ranged[0].Name)

	tagged := decode[[]models.Lead](t, e.do(t, http.MethodGet, "/api/v1/leads?tags=investor", nil))
	require.Len(t, tagged, 1)

	id := list[1].ID
	upd := e.do(t, http.MethodPut, "/api/v1/leads/"+id, map[string]interface{}{"status": "contacted"})
	require.Equal(t, http.StatusOK, upd.Code)
	updated := decode[models.Lead](t, upd)
	assert.Equal(t, "contacted", updated.Status)
	assert.Equal(t, "john@example.com", updated.Email, "omitted fields keep their values")

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/leads/nope", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodDelete, "/api/v1/leads/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/v1/leads/"+id, nil).Code)
}

func TestQualifyLead(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	lead := decode[models.Lead](t, e.do(t, http.MethodPost, "/api/v1/leads", map[string]interface{}{
		"name": "John Smith", "budget_max": 750000, "tags": []string{"referral"},
	}))

	rec := e.do(t, http.MethodPost, "/api/v1/leads/"+lead.ID+"/qualify", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Lead          models.Lead           `json:"lead"`
		Qualification llm.LeadQualification `json:"qualification"`
	}](t, rec)
	assert.Equal(t, 88, resp.Lead.Score)
	assert.Equal(t, models.LeadStatusHot, resp.Lead.Status)
	assert.Equal(t, []string{"referral", "pre-approved"}, resp.Lead.Tags)

	stored, err := e.db.GetLead(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 88, stored.Score)
	assert.Contains(t, e.pub.types(), models.EventLeadUpdated)
}

// --- Properties ---

func TestPropertyInquiryCreatesLead(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	prop := decode[models.Property](t, e.do(t, http.MethodPost, "/api/v1/properties", map[string]interface{}{
		"address": "12 Oak St", "city": "Austin", "price": 425000, "property_type": "townhouse",
	}))

	rec := e.do(t, http.MethodPost, "/api/v1/properties/"+prop.ID+"/inquiries", map[string]string{
		"name": "Maria Lopez", "email": "maria@example.com", "message": "Is it still available?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inquiry := decode[models.WSPropertyInquiry](t, rec)
	assert.Equal(t, "12 Oak St", inquiry.PropertyAddress)
	require.NotEmpty(t, inquiry.LeadID)

	lead, err := e.db.GetLead(inquiry.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "property_inquiry", lead.Source)
	assert.Equal(t, "Austin", lead.PreferredLocation)
	assert.Equal(t, []string{models.EventNewLead, models.EventPropertyInquiry}, e.pub.types())
}

func TestGenerateDescriptionSaves(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	prop := decode[models.Property](t, e.do(t, http.MethodPost, "/api/v1/properties", map[string]interface{}{
		"address": "9 Elm Ave", "bedrooms": 3,
	}))
	rec := e.do(t, http.MethodPost, "/api/v1/properties/"+prop.ID+"/description?save=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	desc := decode[map[string]string](t, rec)["description"]
	// The fake model returns no description, so the template is used.
	assert.True(t, strings.HasPrefix(desc, "Welcome to 9 Elm Ave."), desc)

	stored, _ := e.db.GetProperty(prop.ID)
	assert.Equal(t, desc, stored.Description)
}

// --- Conversations ---

func TestInboundMessageCreatesTasks(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	conv := decode[models.Conversation](t, e.do(t, http.MethodPost, "/api/v1/conversations", map[string]string{
		"contact_name": "John Smith", "channel": "sms",
	}))

	rec := e.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{
		"direction": "inbound", "body": "Can you send me comps for Oak St by next week?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[struct {
		Message models.Message `json:"message"`
		Tasks   []models.Task  `json:"tasks"`
	}](t, rec)
	assert.Equal(t, "John Smith", resp.Message.Sender)
	assert.False(t, resp.Message.Flagged)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "ai", resp.Tasks[0].Source)
	assert.Equal(t, conv.ID, resp.Tasks[0].ConversationID)
	require.NotNil(t, resp.Tasks[0].DueAt)
	assert.Equal(t, []string{models.EventNewMessage, models.EventTaskCreated}, e.pub.types())

	before, _ := e.db.GetConversation(conv.ID)
	assert.Equal(t, 1, before.UnreadCount)

	msgs := decode[[]models.Message](t, e.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil))
	assert.Len(t, msgs, 1)
	after, _ := e.db.GetConversation(conv.ID)
	assert.Equal(t, 0, after.UnreadCount)

	tasks := decode[[]models.Task](t, e.do(t, http.MethodGet, "/api/v1/tasks?source=ai", nil))
	assert.Len(t, tasks, 1)
}

func TestOutboundMessageSkipsModel(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	conv := decode[models.Conversation](t, e.do(t, http.MethodPost, "/api/v1/conversations", map[string]string{"contact_name": "Jane"}))
	rec := e.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{"body": "On my way"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tasks":[]`)
	assert.Contains(t, rec.Body.String(), `"sender":"agent"`)

	bad := e.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]string{"body": "x", "direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

// --- Deals ---

func TestAcceptingOfferOpensTransaction(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	prop := decode[models.Property](t, e.do(t, http.MethodPost, "/api/v1/properties", map[string]interface{}{"address": "3 Pine Rd", "price": 500000}))
	offer := decode[models.Offer](t, e.do(t, http.MethodPost, "/api/v1/offers", map[string]interface{}{
		"property_id": prop.ID, "buyer_name": "Sam Buyer", "amount": 490000,
	}))
	assert.Equal(t, "3 Pine Rd", offer.PropertyAddress)
	assert.Equal(t, "pending", offer.Status)

	rec := e.do(t, http.MethodPut, "/api/v1/offers/"+offer.ID, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Offer       models.Offer        `json:"offer"`
		Transaction *models.Transaction `json:"transaction"`
	}](t, rec)
	require.NotNil(t, resp.Transaction)
	assert.Equal(t, 490000.0, resp.Transaction.Price)
	assert.Equal(t, "active", resp.Transaction.Status)

	// Re-saving an accepted offer does not open a second transaction.
	e.do(t, http.MethodPut, "/api/v1/offers/"+offer.ID, map[string]string{"status": "accepted"})
	txs := decode[[]models.Transaction](t, e.do(t, http.MethodGet, "/api/v1/transactions", nil))
	assert.Len(t, txs, 1)

	assert.Equal(t, []string{
		models.EventOfferUpdate, models.EventOfferUpdate, models.EventTransactionUpdate, models.EventOfferUpdate,
	}, e.pub.types())

	upd := e.do(t, http.MethodPut, "/api/v1/transactions/"+resp.Transaction.ID, map[string]string{"stage": "inspection"})
	require.Equal(t, http.StatusOK, upd.Code)
	assert.Equal(t, "inspection", decode[models.Transaction](t, upd).Stage)
}

func TestOfferValidation(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/v1/offers", map[string]interface{}{"buyer_name": "Sam"}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/v1/offers", map[string]interface{}{
		"buyer_name": "Sam", "amount": 1, "property_id": "missing",
	}).Code)
}

// --- Schedule ---

func TestAppointmentsAndTasks(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	noStart := e.do(t, http.MethodPost, "/api/v1/appointments", map[string]string{"title": "Showing"})
	assert.Equal(t, http.StatusBadRequest, noStart.Code)

	rec := e.do(t, http.MethodPost, "/api/v1/appointments", map[string]string{
		"title": "Showing", "starts_at": "2030-06-01T15:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[models.Appointment](t, rec)
	assert.Equal(t, "showing", appt.Type)

	moved := e.do(t, http.MethodPut, "/api/v1/appointments/"+appt.ID, map[string]string{
		"starts_at": "2030-06-01T16:00:00Z", "ends_at": "2030-06-01T17:00:00Z",
	})
	assert.Equal(t, http.StatusOK, moved.Code)

	task := decode[models.Task](t, e.do(t, http.MethodPost, "/api/v1/tasks", map[string]string{"title": "Order appraisal", "source": "ai"}))
	assert.Equal(t, "manual", task.Source)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/v1/tasks/"+task.ID, map[string]string{"status": "later"}).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/tasks/"+task.ID, map[string]string{"status": "done"}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPut, "/api/v1/tasks/missing", map[string]string{"status": "done"}).Code)
}

// --- Uploads ---

func (e *testEnv) upload(t *testing.T, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	part.Write(content)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestUploadAttachesToProperty(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)
	prop := decode[models.Property](t, e.do(t, http.MethodPost, "/api/v1/properties", map[string]interface{}{"address": "1 Main St"}))

	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 16)...)
	rec := e.upload(t, "front.png", png, map[string]string{"property_id": prop.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	url := decode[map[string]interface{}](t, rec)["url"].(string)

	stored, _ := e.db.GetProperty(prop.ID)
	assert.Equal(t, []string{url}, stored.Images)

	got := e.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, png, got.Body.Bytes())
}

func TestUploadRejectsMismatchedContent(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	assert.Equal(t, http.StatusBadRequest, e.upload(t, "photo.png", []byte("not an image"), nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.upload(t, "script.sh", []byte("#!/bin/sh"), nil).Code)
}

// --- System ---

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	health := e.do(t, http.MethodGet, "/api/v1/system/health", nil)
	require.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `propdesk_http_requests_total{method="GET",route="/api/v1/system/health",status="200"} 1`)
}

func TestAnalyticsAndAudit(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)
	e.do(t, http.MethodPost, "/api/v1/leads", map[string]interface{}{"name": "A", "status": "hot"})

	dash := decode[database.DashboardStats](t, e.do(t, http.MethodGet, "/api/v1/analytics/dashboard", nil))
	assert.Equal(t, 1, dash.TotalLeads)
	assert.Equal(t, 1, dash.HotLeads)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/analytics/leads", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/analytics/sales", nil).Code)

	logs := decode[[]models.AuditLog](t, e.do(t, http.MethodGet, "/api/v1/system/audit?limit=10", nil))
	require.NotEmpty(t, logs)
	assert.Equal(t, "lead_created", logs[0].Action)

	authOnly := decode[[]models.AuditLog](t, e.do(t, http.MethodGet, "/api/v1/system/audit?category=auth", nil))
	require.Len(t, authOnly, 1)
	assert.Equal(t, "setup_complete", authOnly[0].Action)

	info := decode[map[string]interface{}](t, e.do(t, http.MethodGet, "/api/v1/system/info", nil))
	assert.Equal(t, "001_init.sql", info["schema"])
}

func TestUpdateAPIKeyStoresSealedValue(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)

	rec := e.do(t, http.MethodPut, "/api/v1/settings/api-key", map[string]string{"api_key": "sk-live-123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored := e.db.GetSetting("openai_api_key")
	assert.True(t, secrets.IsSealed(stored))
	assert.NotContains(t, stored, "sk-live-123")
	plain, err := e.box.Open(stored)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", plain)
}

func TestBackupsEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.setup(t)
	e.do(t, http.MethodPost, "/api/v1/leads", map[string]interface{}{"name": "A"})

	rec := e.do(t, http.MethodPost, "/api/v1/system/backups", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	man := decode[backup.Manifest](t, rec)
	assert.Equal(t, 1, man.Stats.Leads)

	list := decode[[]backup.Manifest](t, e.do(t, http.MethodGet, "/api/v1/system/backups", nil))
	require.Len(t, list, 1)
	assert.Equal(t, man.ID, list[0].ID)
}
