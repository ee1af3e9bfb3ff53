package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const offerColumns = "id, property_id, property_address, buyer_name, buyer_agent, amount, earnest_money, financing_type, contingencies, status, submitted_at, expires_at, updated_at"

func scanOffer(s rowScanner) (models.Offer, error) {
	var o models.Offer
	var contingencies string
	var expires sql.NullTime
	err := s.Scan(&o.ID, &o.PropertyID, &o.PropertyAddress, &o.BuyerName, &o.BuyerAgent, &o.Amount,
		&o.EarnestMoney, &o.FinancingType, &contingencies, &o.Status, &o.SubmittedAt, &expires, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Contingencies = decodeList(contingencies)
	o.ExpiresAt = nullTime(expires)
	return o, nil
}

func (db *DB) ListOffers() ([]models.Offer, error) {
	rows, err := db.Query("SELECT " + offerColumns + " FROM offers ORDER BY submitted_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := []models.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (db *DB) GetOffer(id string) (*models.Offer, error) {
	o, err := scanOffer(db.QueryRow("SELECT "+offerColumns+" FROM offers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (db *DB) CreateOffer(o *models.Offer) error {
	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = "pending"
	}
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = now
	}
	o.UpdatedAt = now
	if o.Contingencies == nil {
		o.Contingencies = []string{}
	}
	_, err := db.Exec("INSERT INTO offers ("+offerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.PropertyID, o.PropertyAddress, o.BuyerName, o.BuyerAgent, o.Amount, o.EarnestMoney,
		o.FinancingType, encodeList(o.Contingencies), o.Status, o.SubmittedAt, o.ExpiresAt, o.UpdatedAt)
	return err
}

func (db *DB) UpdateOffer(o *models.Offer) error {
	o.UpdatedAt = time.Now().UTC()
	return checkAffected(db.Exec(`UPDATE offers SET property_id = ?, property_address = ?, buyer_name = ?,
		buyer_agent = ?, amount = ?, earnest_money = ?, financing_type = ?, contingencies = ?, status = ?,
		expires_at = ?, updated_at = ? WHERE id = ?`,
		o.PropertyID, o.PropertyAddress, o.BuyerName, o.BuyerAgent, o.Amount, o.EarnestMoney,
		o.FinancingType, encodeList(o.Contingencies), o.Status, o.ExpiresAt, o.UpdatedAt, o.ID))
}
