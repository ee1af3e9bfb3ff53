package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/propdesk/propdesk/internal/auth"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	hub    *Hub
	auth   *auth.Service
	server *httptest.Server
}

func newTestEnv(t *testing.T, opts ...func(*Hub)) *testEnv {
	t.Helper()
	svc := auth.NewService("hub-test-secret")
	hub := NewHub(svc, []string{"http://localhost:5173"})
	for _, opt := range opts {
		opt(hub)
	}
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return &testEnv{hub: hub, auth: svc, server: srv}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http")
}

func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := e.auth.GenerateToken(userID, userID)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL()+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.hub.ClientCount() > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, topic string) {
	t.Helper()
	payload, _ := json.Marshal(models.SubscribePayload{Type: topic})
	require.NoError(t, conn.WriteJSON(models.Envelope{Type: models.ControlSubscribe, Payload: payload}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHandleWSRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleWSRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.auth.GenerateToken("u1", "u1")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL()+"?token="+token, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPublishReachesSubscribedClient(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "agent-1")
	subscribe(t, conn, models.TopicLeads)
	require.Eventually(t, func() bool { return env.hub.subscriberCount(models.TopicLeads) == 1 }, time.Second, 10*time.Millisecond)

	env.hub.Publish(models.EventNewLead, models.Lead{ID: "l1", Name: "John Smith", Score: 92})

	got := readEnvelope(t, conn)
	assert.Equal(t, models.EventNewLead, got.Type)
	var lead models.Lead
	require.NoError(t, json.Unmarshal(got.Payload, &lead))
	assert.Equal(t, "John Smith", lead.Name)
	assert.Equal(t, 92, lead.Score)
}

func TestPublishSkipsUnsubscribedClient(t *testing.T) {
	env := newTestEnv(t)
	leads := env.dial(t, "agent-1")
	subscribe(t, leads, models.TopicLeads)
	require.Eventually(t, func() bool { return env.hub.subscriberCount(models.TopicLeads) == 1 }, time.Second, 10*time.Millisecond)

	env.hub.Publish(models.EventOfferUpdate, models.Offer{ID: "o1"})
	env.hub.Publish(models.EventLeadUpdated, models.Lead{ID: "l2"})

	// The offer update must not have been queued ahead of the lead update.
	got := readEnvelope(t, leads)
	assert.Equal(t, models.EventLeadUpdated, got.Type)
}

func TestTopiclessEventsGoToEveryone(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "agent-1")

	env.hub.Publish(models.EventTaskCreated, models.Task{ID: "t1", Title: "Call back"})

	got := readEnvelope(t, conn)
	assert.Equal(t, models.EventTaskCreated, got.Type)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "agent-1")
	subscribe(t, conn, models.TopicOffers)
	require.Eventually(t, func() bool { return env.hub.subscriberCount(models.TopicOffers) == 1 }, time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(models.SubscribePayload{Type: models.TopicOffers})
	require.NoError(t, conn.WriteJSON(models.Envelope{Type: models.ControlUnsubscribe, Payload: payload}))
	require.Eventually(t, func() bool { return env.hub.subscriberCount(models.TopicOffers) == 0 }, time.Second, 10*time.Millisecond)
}

func TestMalformedControlFramesAreIgnored(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "agent-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"DANCE"}`)))
	subscribe(t, conn, models.TopicTransactions)

	require.Eventually(t, func() bool { return env.hub.subscriberCount(models.TopicTransactions) == 1 }, time.Second, 10*time.Millisecond)
}

func TestClientCountCallback(t *testing.T) {
	var last atomic.Int64
	env := newTestEnv(t, func(h *Hub) {
		h.OnClientsChanged = func(n int) { last.Store(int64(n)) }
	})

	conn := env.dial(t, "agent-1")
	require.Eventually(t, func() bool { return last.Load() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return last.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}
