package database

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/propdesk/propdesk/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	db1, err := New(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db1.Close()

	db2, err := New(dir)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db2.Close()

	applied, err := db2.AppliedMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 1 || applied[0] != "001_init.sql" {
		t.Errorf("expected [001_init.sql], got %v", applied)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	db := newTestDB(t)

	if got := db.GetSetting("jwt_secret"); got != "" {
		t.Fatalf("expected empty setting, got %q", got)
	}
	if err := db.SetSetting("jwt_secret", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting("jwt_secret", "b"); err != nil {
		t.Fatal(err)
	}
	if got := db.GetSetting("jwt_secret"); got != "b" {
		t.Errorf("expected upserted value b, got %q", got)
	}
}

func TestLeadCRUD(t *testing.T) {
	db := newTestDB(t)

	contacted := time.Date(2025, 5, 1, 14, 30, 0, 0, time.UTC)
	lead := &models.Lead{
		Name:          "John Smith",
		Email:         "john@example.com",
		Score:         92,
		Tags:          []string{"vip", "investor"},
		LastContactAt: &contacted,
	}
	if err := db.CreateLead(lead); err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if lead.ID == "" || lead.Status != models.LeadStatusNew {
		t.Fatalf("expected ID and default status, got %+v", lead)
	}

	got, err := db.GetLead(lead.ID)
	if err != nil {
		t.Fatalf("GetLead: %v", err)
	}
	if got.Name != "John Smith" || got.Score != 92 {
		t.Errorf("unexpected lead %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "vip" {
		t.Errorf("tags not round-tripped: %v", got.Tags)
	}
	if got.LastContactAt == nil || !got.LastContactAt.Equal(contacted) {
		t.Errorf("last contact not round-tripped: %v", got.LastContactAt)
	}

	got.Status = models.LeadStatusHot
	got.LastContactAt = nil
	if err := db.UpdateLead(got); err != nil {
		t.Fatalf("UpdateLead: %v", err)
	}
	again, _ := db.GetLead(lead.ID)
	if again.Status != models.LeadStatusHot || again.LastContactAt != nil {
		t.Errorf("update not persisted: %+v", again)
	}

	if err := db.DeleteLead(lead.ID); err != nil {
		t.Fatalf("DeleteLead: %v", err)
	}
	if _, err := db.GetLead(lead.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := db.UpdateLead(got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating deleted lead, got %v", err)
	}
}

func TestListLeadsEmptyIsNonNil(t *testing.T) {
	db := newTestDB(t)
	leads, err := db.ListLeads()
	if err != nil {
		t.Fatal(err)
	}
	if leads == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestAddMessageUpdatesConversation(t *testing.T) {
	db := newTestDB(t)

	conv := &models.Conversation{ContactName: "Jane Doe"}
	if err := db.CreateConversation(conv); err != nil {
		t.Fatal(err)
	}
	for _, m := range []*models.Message{
		{ConversationID: conv.ID, Direction: "inbound", Body: "Is the house still available?"},
		{ConversationID: conv.ID, Direction: "inbound", Body: "Can we see it Saturday?"},
		{ConversationID: conv.ID, Direction: "outbound", Body: "Yes, 10am works."},
	} {
		if err := db.AddMessage(m); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	got, err := db.GetConversation(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UnreadCount != 2 {
		t.Errorf("expected 2 unread, got %d", got.UnreadCount)
	}
	if got.LastMessage != "Yes, 10am works." {
		t.Errorf("unexpected preview %q", got.LastMessage)
	}

	msgs, _ := db.ListMessages(conv.ID)
	if len(msgs) != 3 {
		t.Errorf("expected 3 messages, got %d", len(msgs))
	}

	if err := db.AddMessage(&models.Message{ConversationID: "missing", Body: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown conversation, got %v", err)
	}
}

func TestAppointmentsDue(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	soon := &models.Appointment{Title: "Showing", StartsAt: now.Add(20 * time.Minute)}
	later := &models.Appointment{Title: "Listing", StartsAt: now.Add(3 * time.Hour)}
	past := &models.Appointment{Title: "Done", StartsAt: now.Add(-time.Hour)}
	for _, a := range []*models.Appointment{soon, later, past} {
		if err := db.CreateAppointment(a); err != nil {
			t.Fatal(err)
		}
	}

	due, err := db.AppointmentsDue(now, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != soon.ID {
		t.Fatalf("expected only the upcoming showing, got %+v", due)
	}

	if err := db.MarkReminded(soon.ID, now); err != nil {
		t.Fatal(err)
	}
	due, _ = db.AppointmentsDue(now, 30*time.Minute)
	if len(due) != 0 {
		t.Errorf("expected no appointments after reminding, got %d", len(due))
	}
}

func TestRescheduleRearmsReminder(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	a := &models.Appointment{Title: "Showing", StartsAt: now.Add(10 * time.Minute)}
	db.CreateAppointment(a)
	db.MarkReminded(a.ID, now)

	a.StartsAt = now.Add(25 * time.Minute)
	a.EndsAt = a.StartsAt.Add(time.Hour)
	if err := db.UpdateAppointment(a); err != nil {
		t.Fatal(err)
	}

	due, _ := db.AppointmentsDue(now, 30*time.Minute)
	if len(due) != 1 {
		t.Errorf("expected rescheduled appointment to be due again, got %d", len(due))
	}
}

func TestClosingsDue(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	inTwoDays := now.Add(48 * time.Hour)
	inTenDays := now.Add(240 * time.Hour)

	near := &models.Transaction{PropertyAddress: "12 Oak St", ClosingDate: &inTwoDays}
	far := &models.Transaction{PropertyAddress: "9 Elm Ave", ClosingDate: &inTenDays}
	closed := &models.Transaction{PropertyAddress: "3 Pine Rd", ClosingDate: &inTwoDays, Status: "closed"}
	for _, tx := range []*models.Transaction{near, far, closed} {
		if err := db.CreateTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}

	dayStart := now.Truncate(24 * time.Hour)
	due, err := db.ClosingsDue(now, 72*time.Hour, dayStart)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != near.ID {
		t.Fatalf("expected only the near closing, got %+v", due)
	}

	db.MarkDeadlineNotified(near.ID, now)
	due, _ = db.ClosingsDue(now, 72*time.Hour, dayStart)
	if len(due) != 0 {
		t.Errorf("expected no closings after notification today, got %d", len(due))
	}

	tomorrow := now.Add(24 * time.Hour)
	due, _ = db.ClosingsDue(tomorrow, 72*time.Hour, tomorrow.Truncate(24*time.Hour))
	if len(due) != 1 {
		t.Errorf("expected closing to be flagged again the next day, got %d", len(due))
	}
}

func TestDashboard(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	db.CreateLead(&models.Lead{Name: "A", Status: models.LeadStatusHot})
	db.CreateLead(&models.Lead{Name: "B", Status: models.LeadStatusCold, CreatedAt: now.AddDate(0, 0, -30)})
	db.CreateProperty(&models.Property{Address: "1 Main St", Price: 300000})
	db.CreateOffer(&models.Offer{BuyerName: "C", Amount: 290000})
	db.CreateTransaction(&models.Transaction{PropertyAddress: "1 Main St", Price: 300000})
	db.CreateTransaction(&models.Transaction{PropertyAddress: "2 Main St", Price: 500000, Status: "closed", Commission: 15000})

	s, err := db.Dashboard(now)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if s.TotalLeads != 2 || s.NewLeadsThisWeek != 1 || s.HotLeads != 1 {
		t.Errorf("unexpected lead counts %+v", s)
	}
	if s.ActiveListings != 1 || s.PendingOffers != 1 || s.ActiveTransactions != 1 {
		t.Errorf("unexpected pipeline counts %+v", s)
	}
	if s.PipelineValue != 300000 {
		t.Errorf("expected pipeline value 300000, got %v", s.PipelineValue)
	}

	sales, err := db.SalesAnalytics()
	if err != nil {
		t.Fatal(err)
	}
	if sales.ClosedCount != 1 || sales.CommissionTotal != 15000 {
		t.Errorf("unexpected sales stats %+v", sales)
	}

	leads, err := db.LeadAnalytics()
	if err != nil {
		t.Fatal(err)
	}
	if len(leads.ByStatus) != 2 {
		t.Errorf("expected two status buckets, got %+v", leads.ByStatus)
	}
}

func TestAuditLogAndPrune(t *testing.T) {
	db := newTestDB(t)
	var hooked []string
	db.OnAudit = func(action, category string) { hooked = append(hooked, action+"/"+category) }

	db.LogAudit("u1", "lead_created", "leads", "lead", "l1", "John Smith")
	if len(hooked) != 1 || hooked[0] != "lead_created/leads" {
		t.Errorf("expected OnAudit hook, got %v", hooked)
	}

	db.LogAudit("u1", "offer_created", "offers", "offer", "o1", strings.Repeat("x", 300))
	db.LogAudit("u1", "lead_updated", "leads", "lead", "l2", "")

	logs, err := db.RecentAudit(AuditFilter{Limit: 10})
	if err != nil || len(logs) != 3 {
		t.Fatalf("expected three audit logs, got %v (err %v)", logs, err)
	}
	leads, err := db.RecentAudit(AuditFilter{Category: "leads"})
	if err != nil || len(leads) != 2 {
		t.Fatalf("expected two lead entries, got %v (err %v)", leads, err)
	}
	one, err := db.RecentAudit(AuditFilter{Target: "lead", TargetID: "l1"})
	if err != nil || len(one) != 1 || one[0].Action != "lead_created" {
		t.Fatalf("expected the l1 entry, got %v (err %v)", one, err)
	}
	offers, _ := db.RecentAudit(AuditFilter{Category: "offers"})
	if len(offers) != 1 || len(offers[0].Details) != 200 {
		t.Errorf("expected details truncated to 200, got %v", offers)
	}

	n, err := db.PruneAudit(time.Now().Add(time.Hour))
	if err != nil || n != 3 {
		t.Errorf("expected 3 pruned rows, got %d (err %v)", n, err)
	}
}
