package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/propdesk/propdesk/internal/models"
)

const userColumns = "id, username, password_hash, display_name, email, created_at, updated_at"

// HasAdminUser reports whether setup has created the first account.
func (db *DB) HasAdminUser() (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM users)").Scan(&exists)
	return exists, err
}

func (db *DB) CreateUser(username, passwordHash, displayName, email string) (*models.User, error) {
	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Email:        email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := db.Exec("INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Username, u.PasswordHash, u.DisplayName, u.Email, u.CreatedAt, u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return db.userWhere("username = ?", username)
}

func (db *DB) GetUser(id string) (*models.User, error) {
	return db.userWhere("id = ?", id)
}

// SetUserPassword replaces the stored hash for id.
func (db *DB) SetUserPassword(id, passwordHash string) error {
	return checkAffected(db.Exec("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, time.Now().UTC(), id))
}

func (db *DB) userWhere(cond, arg string) (*models.User, error) {
	var u models.User
	err := db.QueryRow("SELECT "+userColumns+" FROM users WHERE "+cond, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
