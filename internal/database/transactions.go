package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const transactionColumns = "id, property_id, property_address, buyer_name, seller_name, price, commission, stage, status, closing_date, created_at, updated_at"

func scanTransaction(s rowScanner) (models.Transaction, error) {
	var t models.Transaction
	var closing sql.NullTime
	err := s.Scan(&t.ID, &t.PropertyID, &t.PropertyAddress, &t.BuyerName, &t.SellerName, &t.Price,
		&t.Commission, &t.Stage, &t.Status, &closing, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.ClosingDate = nullTime(closing)
	return t, nil
}

func (db *DB) ListTransactions() ([]models.Transaction, error) {
	return db.queryTransactions("SELECT " + transactionColumns + " FROM transactions ORDER BY created_at DESC")
}

func (db *DB) queryTransactions(q string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (db *DB) GetTransaction(id string) (*models.Transaction, error) {
	t, err := scanTransaction(db.QueryRow("SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) CreateTransaction(t *models.Transaction) error {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Stage == "" {
		t.Stage = "under_contract"
	}
	if t.Status == "" {
		t.Status = "active"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := db.Exec("INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.PropertyID, t.PropertyAddress, t.BuyerName, t.SellerName, t.Price, t.Commission,
		t.Stage, t.Status, t.ClosingDate, t.CreatedAt, t.UpdatedAt)
	return err
}

func (db *DB) UpdateTransaction(t *models.Transaction) error {
	t.UpdatedAt = time.Now().UTC()
	return checkAffected(db.Exec(`UPDATE transactions SET property_id = ?, property_address = ?, buyer_name = ?,
		seller_name = ?, price = ?, commission = ?, stage = ?, status = ?, closing_date = ?, updated_at = ? WHERE id = ?`,
		t.PropertyID, t.PropertyAddress, t.BuyerName, t.SellerName, t.Price, t.Commission, t.Stage,
		t.Status, t.ClosingDate, t.UpdatedAt, t.ID))
}

// ClosingsDue returns active transactions closing between now and now+window
// that have not been flagged since notifiedBefore.
func (db *DB) ClosingsDue(now time.Time, window time.Duration, notifiedBefore time.Time) ([]models.Transaction, error) {
	return db.queryTransactions(
		"SELECT "+transactionColumns+` FROM transactions
		WHERE status = 'active' AND closing_date IS NOT NULL AND closing_date >= ? AND closing_date <= ?
		AND (deadline_notified_at IS NULL OR deadline_notified_at < ?)
		ORDER BY closing_date`,
		now.UTC(), now.Add(window).UTC(), notifiedBefore.UTC(),
	)
}

func (db *DB) MarkDeadlineNotified(id string, at time.Time) error {
	return checkAffected(db.Exec("UPDATE transactions SET deadline_notified_at = ? WHERE id = ?", at.UTC(), id))
}
