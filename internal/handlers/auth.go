package handlers

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/propdesk/propdesk/internal/auth"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/models"
)

const minPasswordLen = 8

// validatePassword returns a user-facing reason the password is too weak,
// or "".
func validatePassword(password string) string {
	if len(password) < minPasswordLen {
		return "password must be at least 8 characters"
	}
	var upper, lower, digit bool
	for _, c := range password {
		upper = upper || unicode.IsUpper(c)
		lower = lower || unicode.IsLower(c)
		digit = digit || unicode.IsDigit(c)
	}
	if !upper || !lower || !digit {
		return "password must contain uppercase, lowercase, and a digit"
	}
	return ""
}

// startSession issues a token for user, sets the browser cookies and writes
// the session body with status.
func startSession(w http.ResponseWriter, r *http.Request, svc *auth.Service, user *models.User, remember bool, status int) bool {
	sess, err := svc.Issue(user.ID, user.Username, remember)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return false
	}
	middleware.SetTokenCookie(w, r, sess.Token, sess.TTL)
	middleware.SetCSRFCookie(w, r)
	writeJSON(w, status, map[string]interface{}{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"user":       user,
	})
	return true
}

type AuthHandler struct {
	db   *database.DB
	auth *auth.Service
}

func NewAuthHandler(db *database.DB, authService *auth.Service) *AuthHandler {
	return &AuthHandler{db: db, auth: authService}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := h.db.GetUserByUsername(req.Username)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		writeStoreError(w, "user", err)
		return
	}
	// Unknown user and wrong password look the same to the caller.
	if user == nil || h.auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		h.db.LogAudit("", "login_failed", "auth", "user", "", "Failed login attempt for user: "+req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if startSession(w, r, h.auth, user, req.RememberMe, http.StatusOK) {
		h.db.LogAudit(user.ID, "login", "auth", "user", user.ID, "User logged in")
	}
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	middleware.ClearTokenCookie(w)
	h.db.LogAudit(userID, "logout", "auth", "user", userID, "User logged out")
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.db.GetUser(middleware.GetUserID(r.Context()))
	if err != nil {
		writeStoreError(w, "user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// ChangePassword requires the current password. Existing tokens stay valid
// until they expire.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.db.GetUser(middleware.GetUserID(r.Context()))
	if err != nil {
		writeStoreError(w, "user", err)
		return
	}
	if h.auth.CheckPassword(user.PasswordHash, req.Current) != nil {
		writeError(w, http.StatusForbidden, "current password is incorrect")
		return
	}
	if msg := validatePassword(req.New); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	hash, err := h.auth.HashPassword(req.New)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := h.db.SetUserPassword(user.ID, hash); err != nil {
		writeStoreError(w, "user", err)
		return
	}
	h.db.LogAudit(user.ID, "password_changed", "auth", "user", user.ID, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// SetupHandler creates the first account on a fresh install.
type SetupHandler struct {
	db   *database.DB
	auth *auth.Service
}

func NewSetupHandler(db *database.DB, authService *auth.Service) *SetupHandler {
	return &SetupHandler{db: db, auth: authService}
}

func (h *SetupHandler) Status(w http.ResponseWriter, r *http.Request) {
	hasAdmin, err := h.db.HasAdminUser()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"needs_setup": !hasAdmin})
}

func (h *SetupHandler) Init(w http.ResponseWriter, r *http.Request) {
	switch hasAdmin, err := h.db.HasAdminUser(); {
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to check setup status")
		return
	case hasAdmin:
		writeError(w, http.StatusConflict, "admin user already exists")
		return
	}

	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if msg := validatePassword(req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	user, err := h.db.CreateUser(req.Username, hash, req.DisplayName, strings.TrimSpace(req.Email))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create admin user")
		return
	}

	h.db.LogAudit(user.ID, "setup_complete", "auth", "user", user.ID, "Initial setup completed")
	startSession(w, r, h.auth, user, false, http.StatusCreated)
}
