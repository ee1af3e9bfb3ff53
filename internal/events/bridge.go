package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/models"
)

// SubjectPrefix is prepended to the event type to form the NATS subject.
const SubjectPrefix = "propdesk.events."

// Hub is the live channel the bridge always delivers to.
type Hub interface {
	Publish(eventType string, payload interface{})
}

// Counter records published events.
type Counter interface {
	EventPublished(eventType string)
}

// subjectPublisher is the part of *nats.Conn the bridge uses.
type subjectPublisher interface {
	Publish(subject string, data []byte) error
}

// Bridge fans every domain event out to the websocket hub, the metrics
// counter and, when configured, a NATS subject per event type.
type Bridge struct {
	hub     Hub
	counter Counter

	mu   sync.RWMutex
	bus  subjectPublisher
	conn *nats.Conn
}

func NewBridge(hub Hub, counter Counter) *Bridge {
	return &Bridge{hub: hub, counter: counter}
}

// ConnectNATS attaches a NATS connection. An empty URL leaves the bridge
// hub-only.
func (b *Bridge) ConnectNATS(url string) error {
	if url == "" {
		return nil
	}
	conn, err := nats.Connect(url,
		nats.Name("propdesk"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.bus = conn
	b.mu.Unlock()
	logger.Success("Event bridge publishing to NATS at %s", url)
	return nil
}

// Publish implements the publisher used by handlers and the scheduler.
func (b *Bridge) Publish(eventType string, payload interface{}) {
	if b.hub != nil {
		b.hub.Publish(eventType, payload)
	}
	if b.counter != nil {
		b.counter.EventPublished(eventType)
	}

	b.mu.RLock()
	bus := b.bus
	b.mu.RUnlock()
	if bus == nil {
		return
	}

	data, err := encode(eventType, payload)
	if err != nil {
		logger.Error("Failed to encode %s for NATS: %v", eventType, err)
		return
	}
	if err := bus.Publish(SubjectPrefix+eventType, data); err != nil {
		logger.Warn("NATS publish %s failed: %v", eventType, err)
	}
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Envelope{Type: eventType, Payload: raw})
}

// Close drains the NATS connection, if any.
func (b *Bridge) Close() {
	b.mu.Lock()
	conn := b.conn
	b.conn, b.bus = nil, nil
	b.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Drain(); err != nil {
		logger.Warn("NATS drain failed: %v", err)
		conn.Close()
	}
}
