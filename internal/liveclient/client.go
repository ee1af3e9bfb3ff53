// Package liveclient keeps a single long-lived websocket channel to the
// PropDesk server and turns pushed envelopes into local events.
//
// Transport and parse failures never reach the caller. They are logged and
// either trigger a bounded reconnect or surface as one of the lifecycle
// events (connected, disconnected, maxReconnectAttemptsReached).
package liveclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/propdesk/propdesk/internal/models"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

const (
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second

	// NoReconnect as MaxReconnectAttempts disables reconnecting: the first
	// failure or close is terminal.
	NoReconnect = -1

	writeWait = 10 * time.Second
)

type Config struct {
	// URL of the live endpoint, e.g. ws://localhost:41700/api/v1/ws.
	URL string
	// Token is appended as ?token=. TokenSource, when set, is consulted on
	// every dial instead.
	Token       string
	TokenSource func() string

	// ReconnectDelay is the first backoff interval; later ones grow
	// exponentially with jitter up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// MaxReconnectAttempts of 0 means DefaultMaxReconnectAttempts; any
	// negative value (NoReconnect) means no retries at all.
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration

	Header http.Header
	Dialer *websocket.Dialer
	Logger Logger
}

func (c *Config) setDefaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
		if c.MaxReconnectDelay < c.ReconnectDelay {
			c.MaxReconnectDelay = c.ReconnectDelay
		}
	}
	switch {
	case c.MaxReconnectAttempts == 0:
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	case c.MaxReconnectAttempts < 0:
		c.MaxReconnectAttempts = NoReconnect
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = c.HandshakeTimeout
		c.Dialer = &d
	}
	if c.Logger == nil {
		c.Logger = defaultLogger{}
	}
}

type Client struct {
	cfg Config
	log Logger

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        uint64 // bumped whenever the current connection is abandoned
	wantConn   bool
	attempts   int
	exhausted  bool
	backoff    *backoff.ExponentialBackOff
	timer      *time.Timer
	timerSeq   uint64
	cancelDial context.CancelFunc
	topics     []string

	writeMu sync.Mutex

	*registry
}

func New(cfg Config) *Client {
	cfg.setDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectDelay
	b.MaxInterval = cfg.MaxReconnectDelay
	b.MaxElapsedTime = 0
	b.Reset()

	return &Client{
		cfg:      cfg,
		log:      cfg.Logger,
		backoff:  b,
		registry: newRegistry(cfg.Logger),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel in the background. It is a no-op while a
// connection is being opened or is open. A pending reconnect timer is
// cancelled so at most one dial is ever in flight. After the retry budget
// was exhausted, Connect starts over with a fresh budget.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	if c.state != Disconnected {
		return
	}
	if c.exhausted {
		c.exhausted = false
		c.attempts = 0
		c.backoff.Reset()
	}
	c.wantConn = true
	c.dialLocked()
}

// Disconnect closes the channel, cancels any scheduled reconnect and stops
// the client from reconnecting until Connect is called again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.wantConn = false
	c.stopTimerLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.gen++
	conn := c.conn
	c.conn = nil
	was := c.state
	c.state = Disconnected
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	if was == Connected {
		c.emit(EventDisconnected, nil)
	}
}

// Send writes an envelope when connected. Otherwise the message is dropped
// with a warning; nothing is queued.
func (c *Client) Send(eventType string, payload interface{}) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.log.Warn("live: not connected, dropping %s", eventType)
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("live: marshal %s: %v", eventType, err)
		return
	}
	data, err := json.Marshal(models.Envelope{Type: eventType, Payload: raw})
	if err != nil {
		c.log.Error("live: marshal envelope: %v", err)
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		// The read loop sees the broken connection and handles reconnecting.
		c.log.Warn("live: send %s failed: %v", eventType, err)
		conn.Close()
	}
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	token := c.cfg.Token
	if c.cfg.TokenSource != nil {
		token = c.cfg.TokenSource()
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) dialLocked() {
	c.state = Connecting
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	c.cancelDial = cancel
	go c.dial(ctx, cancel, gen)
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	var conn *websocket.Conn
	target, err := c.dialURL()
	if err == nil {
		var resp *http.Response
		conn, resp, err = c.cfg.Dialer.DialContext(ctx, target, c.cfg.Header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
	}

	c.mu.Lock()
	if gen != c.gen || !c.wantConn {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		c.log.Warn("live: connect failed: %v", err)
		c.attemptReconnect(gen)
		return
	}

	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.backoff.Reset()
	topics := append([]string(nil), c.topics...)
	c.mu.Unlock()

	// Listeners see connected and the server sees the resubscriptions before
	// any pushed frame is dispatched.
	c.log.Info("live: connected to %s", c.cfg.URL)
	c.emit(EventConnected, nil)
	for _, topic := range topics {
		c.Send(models.ControlSubscribe, models.SubscribePayload{Type: topic})
	}
	go c.readLoop(gen, conn)
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, conn, err)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleClose(gen uint64, conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect already tore this connection down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.log.Warn("live: connection closed: %v", err)
	c.emit(EventDisconnected, nil)
	c.attemptReconnect(gen)
}

// attemptReconnect schedules the next dial or, once the retry budget is
// spent, gives up and emits maxReconnectAttemptsReached exactly once.
func (c *Client) attemptReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.wantConn || c.state != Disconnected {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.maxAttempts() {
		fire := !c.exhausted
		c.exhausted = true
		c.wantConn = false
		attempts := c.attempts
		c.mu.Unlock()
		if fire {
			c.log.Error("live: giving up after %d reconnect attempts", attempts)
			c.emit(EventMaxReconnectAttemptsReached, nil)
		}
		return
	}

	c.attempts++
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.cfg.MaxReconnectDelay
	}
	c.stopTimerLocked()
	seq := c.timerSeq
	c.timer = time.AfterFunc(delay, func() { c.fireReconnect(seq) })
	attempt := c.attempts
	c.mu.Unlock()

	c.log.Info("live: reconnecting in %s (attempt %d/%d)", delay.Round(time.Millisecond), attempt, c.cfg.MaxReconnectAttempts)
}

func (c *Client) maxAttempts() int {
	if c.cfg.MaxReconnectAttempts < 0 {
		return 0
	}
	return c.cfg.MaxReconnectAttempts
}

func (c *Client) fireReconnect(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.timerSeq || c.timer == nil {
		return
	}
	c.timer = nil
	if !c.wantConn || c.state != Disconnected {
		return
	}
	c.dialLocked()
}

// handleMessage decodes one inbound frame and dispatches it. Malformed frames
// and unknown types are logged and dropped.
func (c *Client) handleMessage(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("live: malformed frame: %v", err)
		return
	}
	name, ok := eventNames[env.Type]
	if !ok {
		c.log.Warn("live: unknown message type %q", env.Type)
		return
	}
	c.emit(name, env.Payload)
}
