package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

func (db *DB) ListTasks() ([]models.Task, error) {
	rows, err := db.Query("SELECT id, title, description, priority, status, source, lead_id, conversation_id, due_at, created_at FROM tasks ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		var due sql.NullTime
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.Source,
			&t.LeadID, &t.ConversationID, &due, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.DueAt = nullTime(due)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) CreateTask(t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.Status == "" {
		t.Status = "open"
	}
	if t.Source == "" {
		t.Source = "manual"
	}
	t.CreatedAt = time.Now().UTC()
	_, err := db.Exec(`INSERT INTO tasks (id, title, description, priority, status, source, lead_id, conversation_id, due_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Priority, t.Status, t.Source, t.LeadID, t.ConversationID, t.DueAt, t.CreatedAt)
	return err
}

func (db *DB) UpdateTaskStatus(id, status string) error {
	return checkAffected(db.Exec("UPDATE tasks SET status = ? WHERE id = ?", status, id))
}
