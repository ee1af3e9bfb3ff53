package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const appointmentColumns = "id, title, type, lead_id, property_id, location, notes, starts_at, ends_at, reminded_at, created_at"

func scanAppointment(s rowScanner) (models.Appointment, error) {
	var a models.Appointment
	var reminded sql.NullTime
	err := s.Scan(&a.ID, &a.Title, &a.Type, &a.LeadID, &a.PropertyID, &a.Location, &a.Notes,
		&a.StartsAt, &a.EndsAt, &reminded, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	a.RemindedAt = nullTime(reminded)
	return a, nil
}

func (db *DB) queryAppointments(q string, args ...interface{}) ([]models.Appointment, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (db *DB) ListAppointments() ([]models.Appointment, error) {
	return db.queryAppointments("SELECT " + appointmentColumns + " FROM appointments ORDER BY starts_at")
}

func (db *DB) GetAppointment(id string) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRow("SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (db *DB) CreateAppointment(a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Type == "" {
		a.Type = "showing"
	}
	if a.EndsAt.IsZero() {
		a.EndsAt = a.StartsAt.Add(time.Hour)
	}
	a.CreatedAt = time.Now().UTC()
	_, err := db.Exec("INSERT INTO appointments ("+appointmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.Title, a.Type, a.LeadID, a.PropertyID, a.Location, a.Notes,
		a.StartsAt.UTC(), a.EndsAt.UTC(), a.RemindedAt, a.CreatedAt)
	return err
}

// UpdateAppointment rewrites a; moving the start time re-arms the reminder.
func (db *DB) UpdateAppointment(a *models.Appointment) error {
	return checkAffected(db.Exec(`UPDATE appointments SET title = ?, type = ?, lead_id = ?, property_id = ?,
		location = ?, notes = ?, reminded_at = CASE WHEN starts_at = ? THEN reminded_at ELSE NULL END,
		starts_at = ?, ends_at = ? WHERE id = ?`,
		a.Title, a.Type, a.LeadID, a.PropertyID, a.Location, a.Notes,
		a.StartsAt.UTC(), a.StartsAt.UTC(), a.EndsAt.UTC(), a.ID))
}

func (db *DB) DeleteAppointment(id string) error {
	return checkAffected(db.Exec("DELETE FROM appointments WHERE id = ?", id))
}

// AppointmentsDue returns un-reminded appointments starting within window of now.
func (db *DB) AppointmentsDue(now time.Time, window time.Duration) ([]models.Appointment, error) {
	return db.queryAppointments(
		"SELECT "+appointmentColumns+" FROM appointments WHERE reminded_at IS NULL AND starts_at >= ? AND starts_at <= ? ORDER BY starts_at",
		now.UTC(), now.Add(window).UTC(),
	)
}

func (db *DB) MarkReminded(id string, at time.Time) error {
	return checkAffected(db.Exec("UPDATE appointments SET reminded_at = ? WHERE id = ?", at.UTC(), id))
}
