package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/propdesk/propdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider serves canned answers per endpoint and records requests.
type fakeProvider struct {
	mu         sync.Mutex
	chat       string // JSON content returned as the assistant message
	chatStatus int
	transcript string
	moderation string
	requests   []ChatCompletionRequest
	uploads    []string
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if f.chatStatus != 0 {
			w.WriteHeader(f.chatStatus)
			w.Write([]byte(`{"error":{"message":"nope"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "chatcmpl-1",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": f.chat}, "finish_reason": "stop"},
			},
		})
	})
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultTranscribeModel, r.FormValue("model"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, header.Filename+":"+string(data))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"text": f.transcript})
	})
	mux.HandleFunc("/moderations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(f.moderation))
	})
	return mux
}

func (f *fakeProvider) chatRequests() []ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatCompletionRequest(nil), f.requests...)
}

func (f *fakeProvider) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

func newServices(t *testing.T, f *fakeProvider) (*Services, *[]string) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	svc := NewServices(NewClient(srv.URL, "sk-test", "gpt-test"))
	var calls []string
	svc.OnCall = func(op string, fellBack bool) {
		outcome := "ok"
		if fellBack {
			outcome = "fallback"
		}
		calls = append(calls, op+":"+outcome)
	}
	return svc, &calls
}

func TestQualifyLead(t *testing.T) {
	f := &fakeProvider{chat: `{"score": 92, "status": "hot", "tags": ["pre-approved"], "reasoning": "Cash buyer", "next_action": "Book a showing"}`}
	svc, calls := newServices(t, f)

	q := svc.QualifyLead(context.Background(), models.Lead{Name: "John Smith", BudgetMax: 750000})

	assert.Equal(t, 92, q.Score)
	assert.Equal(t, models.LeadStatusHot, q.Status)
	assert.Equal(t, []string{"pre-approved"}, q.Tags)
	assert.Equal(t, []string{"qualify_lead:ok"}, *calls)

	reqs := f.chatRequests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "gpt-test", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	assert.Contains(t, req.Messages[1].Content, "John Smith")
	assert.Contains(t, req.Messages[1].Content, "$750,000")
}

func TestQualifyLeadNormalizesOutOfRangeAnswers(t *testing.T) {
	f := &fakeProvider{chat: `{"score": 140, "status": "lukewarm"}`}
	svc, _ := newServices(t, f)

	q := svc.QualifyLead(context.Background(), models.Lead{Name: "Jane"})

	assert.Equal(t, 100, q.Score)
	assert.Equal(t, models.LeadStatusHot, q.Status)
	assert.NotNil(t, q.Tags)
}

func TestQualifyLeadFallsBack(t *testing.T) {
	cases := map[string]*fakeProvider{
		"provider error": {chatStatus: http.StatusInternalServerError},
		"invalid json":   {chat: `not json at all`},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			svc, calls := newServices(t, f)
			q := svc.QualifyLead(context.Background(), models.Lead{Name: "Jane"})
			assert.Equal(t, 50, q.Score)
			assert.Equal(t, models.LeadStatusWarm, q.Status)
			assert.Equal(t, []string{"qualify_lead:fallback"}, *calls)
		})
	}
}

func TestUnconfiguredServicesFallBackWithoutCalling(t *testing.T) {
	svc := NewServices(NewClient("http://127.0.0.1:1", "", ""))
	ctx := context.Background()

	assert.False(t, svc.Configured())
	assert.Equal(t, 50, svc.QualifyLead(ctx, models.Lead{}).Score)
	assert.Empty(t, svc.ExtractTasks(ctx, "Call me tomorrow"))
	assert.NotNil(t, svc.ExtractTasks(ctx, "Call me tomorrow"))
	assert.False(t, svc.Moderate(ctx, "hello").Flagged)

	tr := svc.TranscribeAndSummarize(ctx, strings.NewReader("audio"), "call.mp3")
	assert.Equal(t, "", tr.Text)
	assert.Equal(t, "Transcription unavailable", tr.Summary)

	desc := svc.GeneratePropertyDescription(ctx, models.Property{
		Address: "12 Oak St", City: "Austin", Bedrooms: 3, Bathrooms: 2.5,
		SquareFeet: 1850, PropertyType: "townhouse", Price: 425000, Features: []string{"garage", "pool"},
	})
	assert.Equal(t, "Welcome to 12 Oak St, Austin. This 3-bedroom, 2.5-bathroom townhouse offers 1850 square feet of living space with garage, pool. Offered at $425,000.", desc)
}

func TestGeneratePropertyDescription(t *testing.T) {
	f := &fakeProvider{chat: `{"description": "  Sunlit craftsman near the park.  "}`}
	svc, _ := newServices(t, f)

	got := svc.GeneratePropertyDescription(context.Background(), models.Property{Address: "1 Main St"})
	assert.Equal(t, "Sunlit craftsman near the park.", got)
}

func TestGeneratePropertyDescriptionEmptyAnswerFallsBack(t *testing.T) {
	f := &fakeProvider{chat: `{"description": ""}`}
	svc, calls := newServices(t, f)

	got := svc.GeneratePropertyDescription(context.Background(), models.Property{Address: "1 Main St"})
	assert.True(t, strings.HasPrefix(got, "Welcome to 1 Main St."))
	assert.Equal(t, []string{"property_description:fallback"}, *calls)
}

func TestExtractTasks(t *testing.T) {
	f := &fakeProvider{chat: `{"tasks": [
		{"title": "Send disclosure packet", "due_date": "2025-06-03", "priority": "high"},
		{"title": "  ", "priority": "low"},
		{"title": "Schedule inspection", "priority": "urgent"}
	]}`}
	svc, _ := newServices(t, f)

	tasks := svc.ExtractTasks(context.Background(), "Please send the disclosures by Tuesday and book the inspection")

	require.Len(t, tasks, 2)
	assert.Equal(t, "Send disclosure packet", tasks[0].Title)
	assert.Equal(t, "2025-06-03", tasks[0].DueDate)
	assert.Equal(t, "medium", tasks[1].Priority)
}

func TestExtractTasksSkipsBlankMessage(t *testing.T) {
	f := &fakeProvider{}
	svc, calls := newServices(t, f)

	assert.Empty(t, svc.ExtractTasks(context.Background(), "   "))
	assert.Empty(t, *calls)
	assert.Empty(t, f.chatRequests())
}

func TestTranscribeAndSummarize(t *testing.T) {
	f := &fakeProvider{
		transcript: "Hi, we'd like to make an offer on Oak Street.",
		chat:       `{"summary": "Buyer wants to offer on Oak St.", "action_items": ["Draft offer"]}`,
	}
	svc, calls := newServices(t, f)

	tr := svc.TranscribeAndSummarize(context.Background(), strings.NewReader("RIFF...."), "call.wav")

	assert.Equal(t, "Hi, we'd like to make an offer on Oak Street.", tr.Text)
	assert.Equal(t, "Buyer wants to offer on Oak St.", tr.Summary)
	assert.Equal(t, []string{"Draft offer"}, tr.ActionItems)
	assert.Equal(t, []string{"call.wav:RIFF...."}, f.uploaded())
	assert.Equal(t, []string{"transcribe:ok", "summarize:ok"}, *calls)
}

func TestTranscribeKeepsTextWhenSummaryFails(t *testing.T) {
	f := &fakeProvider{transcript: "Call me back.", chat: `oops`}
	svc, _ := newServices(t, f)

	tr := svc.TranscribeAndSummarize(context.Background(), strings.NewReader("x"), "a.mp3")

	assert.Equal(t, "Call me back.", tr.Text)
	assert.Equal(t, "Summary unavailable", tr.Summary)
}

func TestModerate(t *testing.T) {
	f := &fakeProvider{moderation: `{"results": [{"flagged": true, "categories": {"harassment": true, "violence": false, "hate": true}}]}`}
	svc, _ := newServices(t, f)

	res := svc.Moderate(context.Background(), "something nasty")

	assert.True(t, res.Flagged)
	assert.Equal(t, []string{"harassment", "hate"}, res.Categories)
}

func TestModerateEmptyResultsFallsBack(t *testing.T) {
	f := &fakeProvider{moderation: `{"results": []}`}
	svc, calls := newServices(t, f)

	assert.False(t, svc.Moderate(context.Background(), "hi").Flagged)
	assert.Equal(t, []string{"moderate:fallback"}, *calls)
}

func TestAPIErrorClassification(t *testing.T) {
	f := &fakeProvider{chatStatus: http.StatusUnauthorized}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "")
	var out map[string]interface{}
	err := c.ChatJSON(context.Background(), "sys", "user", &out)

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsAuthError(ErrEmptyResponse))
}

func TestResolveAPIKey(t *testing.T) {
	key, src := ResolveAPIKey("env-key", "db-key")
	assert.Equal(t, "env-key", key)
	assert.Equal(t, "env", src)

	key, src = ResolveAPIKey("", "db-key")
	assert.Equal(t, "db-key", key)
	assert.Equal(t, "database", src)

	_, src = ResolveAPIKey("", "")
	assert.Equal(t, "none", src)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1,250,000", money(1250000))
	assert.Equal(t, "$999", money(999))
	assert.Equal(t, "unspecified", money(0))
}
