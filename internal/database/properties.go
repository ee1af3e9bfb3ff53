package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const propertyColumns = "id, address, city, state, zip, price, bedrooms, bathrooms, square_feet, property_type, status, features, description, listing_agent, images, listed_at, updated_at"

func scanProperty(s rowScanner) (models.Property, error) {
	var p models.Property
	var features, images string
	err := s.Scan(&p.ID, &p.Address, &p.City, &p.State, &p.Zip, &p.Price, &p.Bedrooms, &p.Bathrooms,
		&p.SquareFeet, &p.PropertyType, &p.Status, &features, &p.Description, &p.ListingAgent, &images,
		&p.ListedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Features = decodeList(features)
	p.Images = decodeList(images)
	return p, nil
}

func (db *DB) ListProperties() ([]models.Property, error) {
	rows, err := db.Query("SELECT " + propertyColumns + " FROM properties ORDER BY listed_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	props := []models.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (db *DB) GetProperty(id string) (*models.Property, error) {
	p, err := scanProperty(db.QueryRow("SELECT "+propertyColumns+" FROM properties WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreateProperty(p *models.Property) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if p.ListedAt.IsZero() {
		p.ListedAt = now
	}
	p.UpdatedAt = now
	if p.Features == nil {
		p.Features = []string{}
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	_, err := db.Exec("INSERT INTO properties ("+propertyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Address, p.City, p.State, p.Zip, p.Price, p.Bedrooms, p.Bathrooms, p.SquareFeet,
		p.PropertyType, p.Status, encodeList(p.Features), p.Description, p.ListingAgent,
		encodeList(p.Images), p.ListedAt, p.UpdatedAt)
	return err
}

func (db *DB) UpdateProperty(p *models.Property) error {
	p.UpdatedAt = time.Now().UTC()
	return checkAffected(db.Exec(`UPDATE properties SET address = ?, city = ?, state = ?, zip = ?, price = ?,
		bedrooms = ?, bathrooms = ?, square_feet = ?, property_type = ?, status = ?, features = ?, description = ?,
		listing_agent = ?, images = ?, updated_at = ? WHERE id = ?`,
		p.Address, p.City, p.State, p.Zip, p.Price, p.Bedrooms, p.Bathrooms, p.SquareFeet,
		p.PropertyType, p.Status, encodeList(p.Features), p.Description, p.ListingAgent,
		encodeList(p.Images), p.UpdatedAt, p.ID))
}

func (db *DB) DeleteProperty(id string) error {
	return checkAffected(db.Exec("DELETE FROM properties WHERE id = ?", id))
}
