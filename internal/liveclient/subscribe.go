package liveclient

import (
	"github.com/propdesk/propdesk/internal/models"
)

// Subscribe asks the server for events on topic. The topic is remembered
// and re-requested after every successful (re)connect, so it is safe to call
// before Connect. There is no acknowledgement.
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	known := false
	for _, t := range c.topics {
		if t == topic {
			known = true
			break
		}
	}
	if !known {
		c.topics = append(c.topics, topic)
	}
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		c.Send(models.ControlSubscribe, models.SubscribePayload{Type: topic})
	}
}

// Unsubscribe forgets topic and tells the server when connected.
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	for i, t := range c.topics {
		if t == topic {
			c.topics = append(c.topics[:i:i], c.topics[i+1:]...)
			break
		}
	}
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		c.Send(models.ControlUnsubscribe, models.SubscribePayload{Type: topic})
	}
}

// Topics returns the remembered subscriptions in request order.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}

func (c *Client) SubscribeToLeads()         { c.Subscribe(models.TopicLeads) }
func (c *Client) SubscribeToConversations() { c.Subscribe(models.TopicConversations) }
func (c *Client) SubscribeToTransactions()  { c.Subscribe(models.TopicTransactions) }
func (c *Client) SubscribeToAppointments()  { c.Subscribe(models.TopicAppointments) }
func (c *Client) SubscribeToOffers()        { c.Subscribe(models.TopicOffers) }
