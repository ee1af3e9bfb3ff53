package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/propdesk/propdesk/internal/auth"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	topics map[string]bool
	topMu  sync.Mutex
}

func (c *Client) subscribed(topic string) bool {
	c.topMu.Lock()
	defer c.topMu.Unlock()
	return c.topics[topic]
}

// Hub fans live events out to authenticated websocket clients. Events with
// a topic only reach clients that subscribed to it.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	auth       *auth.Service
	origins    map[string]bool

	// OnClientsChanged, when set, receives the client count after every
	// register or unregister.
	OnClientsChanged func(n int)
}

func NewHub(authService *auth.Service, allowedOrigins []string) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		auth:       authService,
		origins:    origins,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logger.WS("connected", client.userID)
			h.clientsChanged(n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logger.WS("disconnected", client.userID)
			h.clientsChanged(n)
		}
	}
}

func (h *Hub) clientsChanged(n int) {
	if h.OnClientsChanged != nil {
		h.OnClientsChanged(n)
	}
}

// Stop signals the Hub.Run goroutine to exit and closes every client.
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish wraps payload in an envelope of the given type and delivers it on
// the event's topic (see models.TopicForEvent).
func (h *Hub) Publish(eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal %s payload: %v", eventType, err)
		return
	}
	h.deliver(models.TopicForEvent(eventType), models.Envelope{Type: eventType, Payload: raw})
}

// Broadcast sends an envelope to every connected client.
func (h *Hub) Broadcast(env models.Envelope) {
	h.deliver("", env)
}

// BroadcastToTopic sends an envelope only to clients subscribed to topic.
func (h *Hub) BroadcastToTopic(topic string, env models.Envelope) {
	if topic == "" {
		return
	}
	h.deliver(topic, env)
}

func (h *Hub) deliver(topic string, env models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("Failed to marshal envelope: %v", err)
		return
	}
	logger.Event(env.Type, topic)

	h.mu.Lock()
	for client := range h.clients {
		if topic != "" && !client.subscribed(topic) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop it rather than stall everyone else.
			close(client.send)
			delete(h.clients, client)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	if h.origins[origin] {
		return true
	}
	// Same host as the API itself.
	return strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://") == r.Host
}

// HandleWS upgrades an authenticated request. The token may come from the
// "token" query parameter, the Authorization header or the session cookie.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = middleware.TokenFromRequest(r)
	}

	userID := ""
	if tokenStr != "" {
		if claims, err := h.auth.ValidateToken(tokenStr); err == nil {
			userID = claims.UserID
		}
	}
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		topics: make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleControl(data)
	}
}

func (c *Client) handleControl(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Debug("ws: ignoring malformed frame from %s", c.userID)
		return
	}

	var sub models.SubscribePayload
	if len(env.Payload) > 0 {
		json.Unmarshal(env.Payload, &sub)
	}

	switch env.Type {
	case models.ControlSubscribe:
		if sub.Type != "" {
			c.topMu.Lock()
			c.topics[sub.Type] = true
			c.topMu.Unlock()
		}
	case models.ControlUnsubscribe:
		if sub.Type != "" {
			c.topMu.Lock()
			delete(c.topics, sub.Type)
			c.topMu.Unlock()
		}
	default:
		logger.Debug("ws: unknown control %q from %s", env.Type, c.userID)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// subscriberCount reports how many clients are subscribed to topic.
func (h *Hub) subscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.subscribed(topic) {
			n++
		}
	}
	return n
}
