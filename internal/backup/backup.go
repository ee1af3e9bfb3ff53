// Package backup takes point-in-time copies of the CRM: a consistent SQLite
// snapshot plus a JSON export of every record collection.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/logger"
)

const (
	manifestFile = "manifest.json"
	snapshotFile = "propdesk.db"
	dirLayout    = "20060102-150405.000"
	DefaultKeep  = 7
)

// ErrRunning is returned when a backup is requested while one is in progress.
var ErrRunning = errors.New("backup already running")

type Manifest struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files"`
	Stats     Stats     `json:"stats"`
	SizeBytes int64     `json:"size_bytes"`
}

type Stats struct {
	Leads         int `json:"leads"`
	Properties    int `json:"properties"`
	Offers        int `json:"offers"`
	Transactions  int `json:"transactions"`
	Conversations int `json:"conversations"`
	Appointments  int `json:"appointments"`
	Tasks         int `json:"tasks"`
}

type Manager struct {
	db      *database.DB
	dir     string
	keep    int
	version string
	running atomic.Bool
	now     func() time.Time
}

// New stores backups under <dataDir>/backups and keeps the newest keep of
// them (DefaultKeep when keep <= 0).
func New(db *database.DB, dataDir, version string, keep int) *Manager {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Manager{
		db:      db,
		dir:     filepath.Join(dataDir, "backups"),
		keep:    keep,
		version: version,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) Dir() string { return m.dir }

// Run writes one backup and prunes old ones. Concurrent calls fail fast
// with ErrRunning.
func (m *Manager) Run() (*Manifest, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer m.running.Store(false)

	now := m.now()
	id := now.Format(dirLayout)
	dest := filepath.Join(m.dir, id)
	if err := os.MkdirAll(dest, 0700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	manifest, err := m.write(dest, id, now)
	if err != nil {
		os.RemoveAll(dest)
		m.record("failed", err.Error(), now)
		return nil, err
	}

	if err := m.prune(); err != nil {
		logger.Warn("Backup prune failed: %v", err)
	}
	m.record("success", "", now)
	m.db.LogAudit("system", "backup_executed", "backup", "backup", id,
		fmt.Sprintf("files=%d leads=%d size=%d", len(manifest.Files), manifest.Stats.Leads, manifest.SizeBytes))
	logger.Success("Backup %s completed: %d files", id, len(manifest.Files))
	return manifest, nil
}

func (m *Manager) write(dest, id string, now time.Time) (*Manifest, error) {
	manifest := &Manifest{ID: id, Version: m.version, Timestamp: now}

	// VACUUM INTO gives a consistent copy even while the WAL is active.
	if _, err := m.db.Exec("VACUUM INTO ?", filepath.Join(dest, snapshotFile)); err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}
	manifest.Files = append(manifest.Files, snapshotFile)

	exports := []struct {
		name  string
		count *int
		load  func() (interface{}, int, error)
	}{
		{"leads.json", &manifest.Stats.Leads, collect(m.db.ListLeads)},
		{"properties.json", &manifest.Stats.Properties, collect(m.db.ListProperties)},
		{"offers.json", &manifest.Stats.Offers, collect(m.db.ListOffers)},
		{"transactions.json", &manifest.Stats.Transactions, collect(m.db.ListTransactions)},
		{"conversations.json", &manifest.Stats.Conversations, collect(m.db.ListConversations)},
		{"appointments.json", &manifest.Stats.Appointments, collect(m.db.ListAppointments)},
		{"tasks.json", &manifest.Stats.Tasks, collect(m.db.ListTasks)},
	}
	for _, e := range exports {
		data, n, err := e.load()
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", e.name, err)
		}
		if err := writeJSONFile(filepath.Join(dest, e.name), data); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
		*e.count = n
		manifest.Files = append(manifest.Files, e.name)
	}

	for _, name := range manifest.Files {
		if info, err := os.Stat(filepath.Join(dest, name)); err == nil {
			manifest.SizeBytes += info.Size()
		}
	}
	if err := writeJSONFile(filepath.Join(dest, manifestFile), manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return manifest, nil
}

func collect[T any](list func() ([]T, error)) func() (interface{}, int, error) {
	return func() (interface{}, int, error) {
		records, err := list()
		if err != nil {
			return nil, 0, err
		}
		if records == nil {
			records = []T{}
		}
		return records, len(records), nil
	}
}

// List returns the manifests of the stored backups, newest first.
func (m *Manager) List() ([]Manifest, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Manifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Manifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, e.Name(), manifestFile))
		if err != nil {
			continue
		}
		var man Manifest
		if json.Unmarshal(data, &man) != nil {
			continue
		}
		out = append(out, man)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Manager) prune() error {
	all, err := m.List()
	if err != nil {
		return err
	}
	for i := m.keep; i < len(all); i++ {
		if err := os.RemoveAll(filepath.Join(m.dir, all[i].ID)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) record(status, errMsg string, at time.Time) {
	m.db.SetSetting("backup_last_status", status)
	m.db.SetSetting("backup_last_at", at.Format(time.RFC3339))
	m.db.SetSetting("backup_last_error", errMsg)
}

func writeJSONFile(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
