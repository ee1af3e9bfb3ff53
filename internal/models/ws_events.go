package models

import (
	"encoding/json"
	"time"
)

// Live channel envelope types. Server-pushed events are upper snake case,
// matching what browser clients already listen for.
const (
	EventNewLead             = "NEW_LEAD"
	EventLeadUpdated         = "LEAD_UPDATED"
	EventNewMessage          = "NEW_MESSAGE"
	EventAppointmentReminder = "APPOINTMENT_REMINDER"
	EventTransactionUpdate   = "TRANSACTION_UPDATE"
	EventOfferUpdate         = "OFFER_UPDATE"
	EventPropertyInquiry     = "PROPERTY_INQUIRY"
	EventTaskCreated         = "TASK_CREATED"
	EventDeadlineApproaching = "DEADLINE_APPROACHING"

	// Client → server control messages.
	ControlSubscribe   = "SUBSCRIBE"
	ControlUnsubscribe = "UNSUBSCRIBE"
)

// Subscription topics.
const (
	TopicLeads         = "leads"
	TopicConversations = "conversations"
	TopicTransactions  = "transactions"
	TopicAppointments  = "appointments"
	TopicOffers        = "offers"
)

// TopicForEvent returns the topic an event type is published on. An empty
// string means the event goes to every connected client.
func TopicForEvent(eventType string) string {
	switch eventType {
	case EventNewLead, EventLeadUpdated, EventPropertyInquiry:
		return TopicLeads
	case EventNewMessage:
		return TopicConversations
	case EventTransactionUpdate, EventDeadlineApproaching:
		return TopicTransactions
	case EventAppointmentReminder:
		return TopicAppointments
	case EventOfferUpdate:
		return TopicOffers
	}
	return ""
}

// Envelope is the frame exchanged on the live channel in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of a SUBSCRIBE / UNSUBSCRIBE control message.
type SubscribePayload struct {
	Type string `json:"type"`
}

// WSPropertyInquiry is the payload for PROPERTY_INQUIRY broadcasts.
type WSPropertyInquiry struct {
	PropertyID      string `json:"property_id"`
	PropertyAddress string `json:"property_address"`
	LeadID          string `json:"lead_id,omitempty"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Message         string `json:"message"`
}

// WSAppointmentReminder is the payload for APPOINTMENT_REMINDER broadcasts.
type WSAppointmentReminder struct {
	AppointmentID string    `json:"appointment_id"`
	Title         string    `json:"title"`
	Location      string    `json:"location"`
	StartsAt      time.Time `json:"starts_at"`
	MinutesUntil  int       `json:"minutes_until"`
}

// WSDeadlineApproaching is the payload for DEADLINE_APPROACHING broadcasts.
type WSDeadlineApproaching struct {
	TransactionID   string    `json:"transaction_id"`
	PropertyAddress string    `json:"property_address"`
	Deadline        string    `json:"deadline"`
	DueAt           time.Time `json:"due_at"`
	DaysRemaining   int       `json:"days_remaining"`
}
