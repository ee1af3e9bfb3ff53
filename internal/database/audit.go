package database

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const maxAuditDetails = 200

// AuditFilter narrows RecentAudit. Zero fields match everything.
type AuditFilter struct {
	Category string
	Target   string
	TargetID string
	Limit    int
}

// LogAudit records an action. Failures are swallowed; auditing never breaks
// the request that triggered it.
func (db *DB) LogAudit(userID, action, category, target, targetID, details string) {
	if len(details) > maxAuditDetails {
		details = details[:maxAuditDetails]
	}
	_, _ = db.Exec(`INSERT INTO audit_logs (id, user_id, action, category, target, target_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, action, category, target, targetID, details, time.Now().UTC())
	if db.OnAudit != nil {
		db.OnAudit(action, category)
	}
}

// RecentAudit returns matching entries, newest first.
func (db *DB) RecentAudit(f AuditFilter) ([]models.AuditLog, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	var where []string
	var args []interface{}
	for _, c := range []struct{ col, val string }{
		{"category", f.Category},
		{"target", f.Target},
		{"target_id", f.TargetID},
	} {
		if c.val != "" {
			where = append(where, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	q := "SELECT id, user_id, action, category, target, target_id, details, created_at FROM audit_logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Category, &l.Target, &l.TargetID, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// PruneAudit deletes entries older than cutoff.
func (db *DB) PruneAudit(cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM audit_logs WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
