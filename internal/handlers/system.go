package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/netutil"
)

var startTime = time.Now()

// AppVersion is set from main at startup via ldflags.
var AppVersion = "dev"

// ClientCounter reports the number of live websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// Sealer encrypts a settings value before it is stored.
type Sealer interface {
	Seal(plaintext string) (string, error)
}

type SystemHandler struct {
	db      *database.DB
	dataDir string
	client  *llm.Client
	live    ClientCounter
	sealer  Sealer
	port    int
}

func NewSystemHandler(db *database.DB, dataDir string, client *llm.Client, live ClientCounter, sealer Sealer, port int) *SystemHandler {
	return &SystemHandler{db: db, dataDir: dataDir, client: client, live: live, sealer: sealer, port: port}
}

// Health reports whether the database answers.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	dbSize := "unknown"
	if info, err := os.Stat(filepath.Join(h.dataDir, "propdesk.db")); err == nil {
		dbSize = formatBytes(info.Size())
	}

	clients := 0
	if h.live != nil {
		clients = h.live.ClientCount()
	}
	model := ""
	if h.client != nil {
		model = h.client.Model()
	}
	schema := ""
	if applied, err := h.db.AppliedMigrations(); err == nil && len(applied) > 0 {
		schema = applied[len(applied)-1]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":            AppVersion,
		"go_version":         runtime.Version(),
		"os":                 runtime.GOOS,
		"arch":               runtime.GOARCH,
		"uptime":             formatDuration(time.Since(startTime)),
		"db_size":            dbSize,
		"schema":             schema,
		"ws_clients":         clients,
		"api_key_configured": h.client != nil && h.client.IsConfigured(),
		"model":              model,
		"lan_ip":             netutil.LANIP(),
		"port":               h.port,
	})
}

// UpdateAPIKey stores the model provider key, sealed when a sealer is
// configured, and applies it immediately.
// A key from the environment still wins on the next start.
func (h *SystemHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stored := req.APIKey
	if h.sealer != nil && stored != "" {
		sealed, err := h.sealer.Seal(stored)
		if err != nil {
			logger.Error("Failed to seal API key: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		stored = sealed
	}
	if err := h.db.SetSetting("openai_api_key", stored); err != nil {
		writeStoreError(w, "settings", err)
		return
	}
	if h.client != nil {
		h.client.UpdateAPIKey(req.APIKey)
	}
	h.db.LogAudit(middleware.GetUserID(r.Context()), "api_key_updated", "settings", "setting", "openai_api_key", "")
	writeJSON(w, http.StatusOK, map[string]bool{"configured": req.APIKey != ""})
}

// AuditLog returns recent audit entries, newest first. ?category=,
// ?target= and ?target_id= narrow the result.
func (h *SystemHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.AuditFilter{
		Category: q.Get("category"),
		Target:   q.Get("target"),
		TargetID: q.Get("target_id"),
		Limit:    100,
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 1000 {
		f.Limit = l
	}
	logs, err := h.db.RecentAudit(f)
	if err != nil {
		writeStoreError(w, "audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
