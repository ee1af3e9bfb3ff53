package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const leadColumns = "id, name, email, phone, source, status, score, budget_min, budget_max, preferred_location, property_type, timeline, tags, notes, assigned_agent, last_contact_at, created_at, updated_at"

func scanLead(s rowScanner) (models.Lead, error) {
	var l models.Lead
	var tags string
	var lastContact sql.NullTime
	err := s.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.Source, &l.Status, &l.Score,
		&l.BudgetMin, &l.BudgetMax, &l.PreferredLocation, &l.PropertyType, &l.Timeline,
		&tags, &l.Notes, &l.AssignedAgent, &lastContact, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.Tags = decodeList(tags)
	l.LastContactAt = nullTime(lastContact)
	return l, nil
}

// ListLeads returns every lead, newest first.
func (db *DB) ListLeads() ([]models.Lead, error) {
	rows, err := db.Query("SELECT " + leadColumns + " FROM leads ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (db *DB) GetLead(id string) (*models.Lead, error) {
	l, err := scanLead(db.QueryRow("SELECT "+leadColumns+" FROM leads WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLead inserts l, assigning ID and timestamps when unset.
func (db *DB) CreateLead(l *models.Lead) error {
	now := time.Now().UTC()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = models.LeadStatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if l.Tags == nil {
		l.Tags = []string{}
	}
	_, err := db.Exec("INSERT INTO leads ("+leadColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		l.ID, l.Name, l.Email, l.Phone, l.Source, l.Status, l.Score, l.BudgetMin, l.BudgetMax,
		l.PreferredLocation, l.PropertyType, l.Timeline, encodeList(l.Tags), l.Notes, l.AssignedAgent,
		l.LastContactAt, l.CreatedAt, l.UpdatedAt)
	return err
}

func (db *DB) UpdateLead(l *models.Lead) error {
	l.UpdatedAt = time.Now().UTC()
	return checkAffected(db.Exec(`UPDATE leads SET name = ?, email = ?, phone = ?, source = ?, status = ?, score = ?,
		budget_min = ?, budget_max = ?, preferred_location = ?, property_type = ?, timeline = ?, tags = ?, notes = ?,
		assigned_agent = ?, last_contact_at = ?, updated_at = ? WHERE id = ?`,
		l.Name, l.Email, l.Phone, l.Source, l.Status, l.Score, l.BudgetMin, l.BudgetMax,
		l.PreferredLocation, l.PropertyType, l.Timeline, encodeList(l.Tags), l.Notes,
		l.AssignedAgent, l.LastContactAt, l.UpdatedAt, l.ID))
}

func (db *DB) DeleteLead(id string) error {
	return checkAffected(db.Exec("DELETE FROM leads WHERE id = ?", id))
}
