package database

import "time"

// DashboardStats is the summary shown on the dashboard.
type DashboardStats struct {
	TotalLeads           int     `json:"total_leads"`
	NewLeadsThisWeek     int     `json:"new_leads_this_week"`
	HotLeads             int     `json:"hot_leads"`
	ActiveListings       int     `json:"active_listings"`
	PendingOffers        int     `json:"pending_offers"`
	ActiveTransactions   int     `json:"active_transactions"`
	PipelineValue        float64 `json:"pipeline_value"`
	UpcomingAppointments int     `json:"upcoming_appointments"`
	UnreadMessages       int     `json:"unread_messages"`
	OpenTasks            int     `json:"open_tasks"`
}

func (db *DB) Dashboard(now time.Time) (*DashboardStats, error) {
	var s DashboardStats
	now = now.UTC()
	queries := []struct {
		dest interface{}
		q    string
		args []interface{}
	}{
		{&s.TotalLeads, "SELECT COUNT(*) FROM leads", nil},
		{&s.NewLeadsThisWeek, "SELECT COUNT(*) FROM leads WHERE created_at >= ?", []interface{}{now.AddDate(0, 0, -7)}},
		{&s.HotLeads, "SELECT COUNT(*) FROM leads WHERE status = 'hot'", nil},
		{&s.ActiveListings, "SELECT COUNT(*) FROM properties WHERE status = 'active'", nil},
		{&s.PendingOffers, "SELECT COUNT(*) FROM offers WHERE status = 'pending'", nil},
		{&s.ActiveTransactions, "SELECT COUNT(*) FROM transactions WHERE status = 'active'", nil},
		{&s.PipelineValue, "SELECT COALESCE(SUM(price), 0) FROM transactions WHERE status = 'active'", nil},
		{&s.UpcomingAppointments, "SELECT COUNT(*) FROM appointments WHERE starts_at >= ? AND starts_at <= ?", []interface{}{now, now.AddDate(0, 0, 7)}},
		{&s.UnreadMessages, "SELECT COALESCE(SUM(unread_count), 0) FROM conversations", nil},
		{&s.OpenTasks, "SELECT COUNT(*) FROM tasks WHERE status != 'done'", nil},
	}
	for _, q := range queries {
		if err := db.QueryRow(q.q, q.args...).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// CountBucket is one labelled count in a breakdown.
type CountBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LeadStats breaks leads down by status and source.
type LeadStats struct {
	ByStatus     []CountBucket `json:"by_status"`
	BySource     []CountBucket `json:"by_source"`
	AverageScore float64       `json:"average_score"`
	Conversion   float64       `json:"conversion_rate"`
}

func (db *DB) LeadAnalytics() (*LeadStats, error) {
	var s LeadStats
	var err error
	if s.ByStatus, err = db.countBy("SELECT status, COUNT(*) FROM leads GROUP BY status ORDER BY COUNT(*) DESC"); err != nil {
		return nil, err
	}
	if s.BySource, err = db.countBy("SELECT source, COUNT(*) FROM leads GROUP BY source ORDER BY COUNT(*) DESC"); err != nil {
		return nil, err
	}
	var total, converted int
	if err := db.QueryRow("SELECT COALESCE(AVG(score), 0), COUNT(*), COALESCE(SUM(CASE WHEN status = 'converted' THEN 1 ELSE 0 END), 0) FROM leads").
		Scan(&s.AverageScore, &total, &converted); err != nil {
		return nil, err
	}
	if total > 0 {
		s.Conversion = float64(converted) / float64(total)
	}
	return &s, nil
}

// SalesStats summarises closed and in-flight deals.
type SalesStats struct {
	ClosedCount     int           `json:"closed_count"`
	ClosedVolume    float64       `json:"closed_volume"`
	CommissionTotal float64       `json:"commission_total"`
	AveragePrice    float64       `json:"average_price"`
	ByStage         []CountBucket `json:"by_stage"`
}

func (db *DB) SalesAnalytics() (*SalesStats, error) {
	var s SalesStats
	if err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(price), 0), COALESCE(SUM(commission), 0), COALESCE(AVG(price), 0)
		FROM transactions WHERE status = 'closed'`).
		Scan(&s.ClosedCount, &s.ClosedVolume, &s.CommissionTotal, &s.AveragePrice); err != nil {
		return nil, err
	}
	var err error
	if s.ByStage, err = db.countBy("SELECT stage, COUNT(*) FROM transactions WHERE status = 'active' GROUP BY stage ORDER BY stage"); err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) countBy(q string) ([]CountBucket, error) {
	rows, err := db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CountBucket{}
	for rows.Next() {
		var b CountBucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
