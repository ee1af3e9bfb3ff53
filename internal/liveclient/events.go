package liveclient

import (
	"encoding/json"
	"sync"

	"github.com/propdesk/propdesk/internal/models"
)

// Local event names.
const (
	EventNewLead             = "newLead"
	EventLeadUpdated         = "leadUpdated"
	EventNewMessage          = "newMessage"
	EventAppointmentReminder = "appointmentReminder"
	EventTransactionUpdate   = "transactionUpdate"
	EventOfferUpdate         = "offerUpdate"
	EventPropertyInquiry     = "propertyInquiry"
	EventTaskCreated         = "taskCreated"
	EventDeadlineApproaching = "deadlineApproaching"

	EventConnected                   = "connected"
	EventDisconnected                = "disconnected"
	EventMaxReconnectAttemptsReached = "maxReconnectAttemptsReached"
)

var eventNames = map[string]string{
	models.EventNewLead:             EventNewLead,
	models.EventLeadUpdated:         EventLeadUpdated,
	models.EventNewMessage:          EventNewMessage,
	models.EventAppointmentReminder: EventAppointmentReminder,
	models.EventTransactionUpdate:   EventTransactionUpdate,
	models.EventOfferUpdate:         EventOfferUpdate,
	models.EventPropertyInquiry:     EventPropertyInquiry,
	models.EventTaskCreated:         EventTaskCreated,
	models.EventDeadlineApproaching: EventDeadlineApproaching,
}

// EventName maps a wire envelope type to its local event name.
func EventName(wireType string) (string, bool) {
	name, ok := eventNames[wireType]
	return name, ok
}

// Listener receives the raw payload of an event. Lifecycle events carry a
// nil payload.
type Listener func(payload json.RawMessage)

// Subscription identifies one registration made with On. Passing it to Off
// removes exactly that registration, even if the same function was
// registered several times.
type Subscription struct {
	event string
}

func (s *Subscription) Event() string { return s.event }

type entry struct {
	sub *Subscription
	fn  Listener
}

type registry struct {
	log       Logger
	mu        sync.RWMutex
	listeners map[string][]entry
}

func newRegistry(log Logger) *registry {
	return &registry{log: log, listeners: make(map[string][]entry)}
}

func (r *registry) On(event string, fn Listener) *Subscription {
	sub := &Subscription{event: event}
	r.mu.Lock()
	r.listeners[event] = append(r.listeners[event], entry{sub: sub, fn: fn})
	r.mu.Unlock()
	return sub
}

func (r *registry) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.listeners[sub.event]
	for i, e := range list {
		if e.sub == sub {
			r.listeners[sub.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// emit runs listeners synchronously in registration order. A panicking
// listener is logged and does not stop the ones after it.
func (r *registry) emit(event string, payload json.RawMessage) {
	r.mu.RLock()
	list := append([]entry(nil), r.listeners[event]...)
	r.mu.RUnlock()

	for _, e := range list {
		r.call(event, e.fn, payload)
	}
}

func (r *registry) call(event string, fn Listener, payload json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("live: %s listener panicked: %v", event, rec)
		}
	}()
	fn(payload)
}

func onTyped[T any](c *Client, event string, fn func(T)) *Subscription {
	return c.On(event, func(payload json.RawMessage) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			c.log.Warn("live: decode %s payload: %v", event, err)
			return
		}
		fn(v)
	})
}

func onSignal(c *Client, event string, fn func()) *Subscription {
	return c.On(event, func(json.RawMessage) { fn() })
}

func (c *Client) OnNewLead(fn func(models.Lead)) *Subscription {
	return onTyped(c, EventNewLead, fn)
}

func (c *Client) OnLeadUpdated(fn func(models.Lead)) *Subscription {
	return onTyped(c, EventLeadUpdated, fn)
}

func (c *Client) OnNewMessage(fn func(models.Message)) *Subscription {
	return onTyped(c, EventNewMessage, fn)
}

func (c *Client) OnAppointmentReminder(fn func(models.WSAppointmentReminder)) *Subscription {
	return onTyped(c, EventAppointmentReminder, fn)
}

func (c *Client) OnTransactionUpdate(fn func(models.Transaction)) *Subscription {
	return onTyped(c, EventTransactionUpdate, fn)
}

func (c *Client) OnOfferUpdate(fn func(models.Offer)) *Subscription {
	return onTyped(c, EventOfferUpdate, fn)
}

func (c *Client) OnPropertyInquiry(fn func(models.WSPropertyInquiry)) *Subscription {
	return onTyped(c, EventPropertyInquiry, fn)
}

func (c *Client) OnTaskCreated(fn func(models.Task)) *Subscription {
	return onTyped(c, EventTaskCreated, fn)
}

func (c *Client) OnDeadlineApproaching(fn func(models.WSDeadlineApproaching)) *Subscription {
	return onTyped(c, EventDeadlineApproaching, fn)
}

func (c *Client) OnConnected(fn func()) *Subscription {
	return onSignal(c, EventConnected, fn)
}

func (c *Client) OnDisconnected(fn func()) *Subscription {
	return onSignal(c, EventDisconnected, fn)
}

func (c *Client) OnMaxReconnectAttemptsReached(fn func()) *Subscription {
	return onSignal(c, EventMaxReconnectAttemptsReached, fn)
}
