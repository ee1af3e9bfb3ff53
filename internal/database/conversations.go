package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const conversationColumns = "id, lead_id, contact_name, channel, last_message, unread_count, created_at, updated_at"

func scanConversation(s rowScanner) (models.Conversation, error) {
	var c models.Conversation
	err := s.Scan(&c.ID, &c.LeadID, &c.ContactName, &c.Channel, &c.LastMessage, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (db *DB) ListConversations() ([]models.Conversation, error) {
	rows, err := db.Query("SELECT " + conversationColumns + " FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (db *DB) GetConversation(id string) (*models.Conversation, error) {
	c, err := scanConversation(db.QueryRow("SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) CreateConversation(c *models.Conversation) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Channel == "" {
		c.Channel = "sms"
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := db.Exec("INSERT INTO conversations ("+conversationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.LeadID, c.ContactName, c.Channel, c.LastMessage, c.UnreadCount, c.CreatedAt, c.UpdatedAt)
	return err
}

// MarkConversationRead resets the unread counter.
func (db *DB) MarkConversationRead(id string) error {
	return checkAffected(db.Exec("UPDATE conversations SET unread_count = 0 WHERE id = ?", id))
}

func (db *DB) ListMessages(conversationID string) ([]models.Message, error) {
	rows, err := db.Query(
		"SELECT id, conversation_id, sender, direction, body, flagged, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at",
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Direction, &m.Body, &m.Flagged, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AddMessage stores m and bumps the parent conversation's preview and, for
// inbound messages, its unread counter.
func (db *DB) AddMessage(m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Direction == "" {
		m.Direction = "outbound"
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	unread := 0
	if m.Direction == "inbound" {
		unread = 1
	}
	res, err := tx.Exec("UPDATE conversations SET last_message = ?, unread_count = unread_count + ?, updated_at = ? WHERE id = ?",
		m.Body, unread, m.CreatedAt, m.ConversationID)
	if err := checkAffected(res, err); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO messages (id, conversation_id, sender, direction, body, flagged, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.ConversationID, m.Sender, m.Direction, m.Body, m.Flagged, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}
