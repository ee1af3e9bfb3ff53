package scheduler

import (
	"math"
	"sync"
	"time"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/models"
	"github.com/robfig/cron/v3"
)

// Publisher pushes a live event to connected clients.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

const (
	JobReminders = "appointment_reminders"
	JobDeadlines = "closing_deadlines"
	JobRetention = "audit_retention"
	JobBackup    = "database_backup"
)

// Cron expressions, with a leading seconds field.
const (
	everyMinute = "0 * * * * *"
	hourly      = "0 0 * * * *"
	nightly     = "0 30 3 * * *"
	backupTime  = "0 0 4 * * *"
)

type Options struct {
	ReminderWindow time.Duration
	DeadlineWindow time.Duration
	AuditRetention time.Duration
	// Backup, when set, runs nightly after retention.
	Backup func() error
}

// Scheduler runs the periodic CRM jobs: appointment reminders, closing
// deadline warnings, audit log retention and the optional nightly backup.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	db      *database.DB
	pub     Publisher
	opts    Options
	now     func() time.Time

	// OnRun, when set, is told about every finished job run.
	OnRun func(job string, err error)
}

func New(db *database.DB, pub Publisher, opts Options) *Scheduler {
	if opts.ReminderWindow <= 0 {
		opts.ReminderWindow = 30 * time.Minute
	}
	if opts.DeadlineWindow <= 0 {
		opts.DeadlineWindow = 72 * time.Hour
	}
	if opts.AuditRetention <= 0 {
		opts.AuditRetention = 90 * 24 * time.Hour
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
		db:      db,
		pub:     pub,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start() {
	s.addJob(JobReminders, everyMinute, func() error {
		_, err := s.RunReminders()
		return err
	})
	s.addJob(JobDeadlines, hourly, func() error {
		_, err := s.RunDeadlines()
		return err
	})
	s.addJob(JobRetention, nightly, func() error {
		_, err := s.RunRetention()
		return err
	})
	if s.opts.Backup != nil {
		s.addJob(JobBackup, backupTime, s.opts.Backup)
	}
	s.cron.Start()
	logger.Success("Scheduler started")
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Success("Scheduler stopped")
}

func (s *Scheduler) addJob(name, spec string, run func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.entries[name]; exists {
		s.cron.Remove(entryID)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		err := run()
		if err != nil {
			logger.Error("Job %s failed: %v", name, err)
		}
		if s.OnRun != nil {
			s.OnRun(name, err)
		}
	})
	if err != nil {
		logger.Error("Failed to add job %s: %v", name, err)
		return
	}
	s.entries[name] = entryID
	logger.Debug("Added job %s with cron=%s", name, spec)
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// RunReminders publishes APPOINTMENT_REMINDER once for every appointment that
// starts within the reminder window.
func (s *Scheduler) RunReminders() (int, error) {
	now := s.now()
	due, err := s.db.AppointmentsDue(now, s.opts.ReminderWindow)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, a := range due {
		if err := s.db.MarkReminded(a.ID, now); err != nil {
			logger.Error("Failed to mark appointment %s reminded: %v", a.ID, err)
			continue
		}
		s.pub.Publish(models.EventAppointmentReminder, models.WSAppointmentReminder{
			AppointmentID: a.ID,
			Title:         a.Title,
			Location:      a.Location,
			StartsAt:      a.StartsAt,
			MinutesUntil:  int(math.Ceil(a.StartsAt.Sub(now).Minutes())),
		})
		sent++
	}
	if sent > 0 {
		logger.Info("Sent %d appointment reminder(s)", sent)
	}
	return sent, nil
}

// RunDeadlines publishes DEADLINE_APPROACHING for open transactions closing
// within the deadline window, at most once per transaction per UTC day.
func (s *Scheduler) RunDeadlines() (int, error) {
	now := s.now()
	dayStart := now.Truncate(24 * time.Hour)
	due, err := s.db.ClosingsDue(now, s.opts.DeadlineWindow, dayStart)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, tx := range due {
		if tx.ClosingDate == nil {
			continue
		}
		if err := s.db.MarkDeadlineNotified(tx.ID, now); err != nil {
			logger.Error("Failed to mark transaction %s notified: %v", tx.ID, err)
			continue
		}
		s.pub.Publish(models.EventDeadlineApproaching, models.WSDeadlineApproaching{
			TransactionID:   tx.ID,
			PropertyAddress: tx.PropertyAddress,
			Deadline:        "closing",
			DueAt:           *tx.ClosingDate,
			DaysRemaining:   daysUntil(now, *tx.ClosingDate),
		})
		sent++
	}
	if sent > 0 {
		logger.Info("Sent %d closing deadline warning(s)", sent)
	}
	return sent, nil
}

func daysUntil(now, due time.Time) int {
	d := int(math.Ceil(due.Sub(now).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}

// RunRetention deletes audit log entries older than the retention period.
func (s *Scheduler) RunRetention() (int64, error) {
	rows, err := s.db.PruneAudit(s.now().Add(-s.opts.AuditRetention))
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		logger.Info("Data retention: cleaned up %d old audit entries", rows)
	}
	return rows, nil
}
