package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/propdesk/propdesk/internal/liveclient"
	"github.com/propdesk/propdesk/internal/models"
)

var allTopics = []string{
	models.TopicLeads,
	models.TopicConversations,
	models.TopicTransactions,
	models.TopicAppointments,
	models.TopicOffers,
}

var errReconnectExhausted = errors.New("gave up reconnecting to the live feed")

func (a *app) watchCommand() *cobra.Command {
	var maxAttempts int
	cmd := &cobra.Command{
		Use:       "watch [topics...]",
		Short:     "Stream live CRM events",
		Long:      "Stream live events until interrupted. Topics: " + strings.Join(allTopics, ", ") + " (default all).",
		ValidArgs: allTopics,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.client.Tokens().Token() == "" {
				return errors.New("not logged in; run `propdeskctl login` first")
			}
			liveURL, err := a.client.LiveURL()
			if err != nil {
				return err
			}
			topics := args
			if len(topics) == 0 {
				topics = allTopics
			}

			retries, err := reconnectBudget(maxAttempts)
			if err != nil {
				return err
			}
			live := liveclient.New(liveclient.Config{
				URL:                  liveURL,
				TokenSource:          a.client.Tokens().Token,
				MaxReconnectAttempts: retries,
			})
			done := make(chan error, 1)
			p := &eventPrinter{w: a.out}
			p.attach(live, cmd.ErrOrStderr(), done)

			for _, t := range topics {
				live.Subscribe(t)
			}
			live.Connect()
			defer live.Disconnect()

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s on %s (Ctrl-C to stop)\n", strings.Join(topics, ", "), liveURL)
			select {
			case <-cmd.Context().Done():
				return nil
			case err := <-done:
				return err
			}
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-reconnects", liveclient.DefaultMaxReconnectAttempts, "reconnect attempts before giving up (0 disables reconnecting)")
	return cmd
}

// reconnectBudget maps the --max-reconnects flag onto the client config,
// where 0 means "use the default".
func reconnectBudget(n int) (int, error) {
	switch {
	case n < 0:
		return 0, fmt.Errorf("--max-reconnects must be >= 0, got %d", n)
	case n == 0:
		return liveclient.NoReconnect, nil
	}
	return n, nil
}

// eventPrinter writes one line per live event.
type eventPrinter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func (p *eventPrinter) printf(kind, format string, args ...interface{}) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s  %-22s %s\n", now().Format("15:04:05"), kind, fmt.Sprintf(format, args...))
}

func (p *eventPrinter) attach(c *liveclient.Client, status io.Writer, done chan<- error) {
	c.OnNewLead(func(l models.Lead) {
		p.printf(models.EventNewLead, "%s via %s (%s)", l.Name, orDash(l.Source), l.Status)
	})
	c.OnLeadUpdated(func(l models.Lead) {
		p.printf(models.EventLeadUpdated, "%s now %s, score %d", l.Name, l.Status, l.Score)
	})
	c.OnNewMessage(func(m models.Message) {
		p.printf(models.EventNewMessage, "%s %s: %s", m.Direction, m.Sender, truncate(m.Body, 60))
	})
	c.OnAppointmentReminder(func(r models.WSAppointmentReminder) {
		p.printf(models.EventAppointmentReminder, "%s in %d min at %s", r.Title, r.MinutesUntil, orDash(r.Location))
	})
	c.OnTransactionUpdate(func(t models.Transaction) {
		p.printf(models.EventTransactionUpdate, "%s stage %s (%s)", orDash(t.PropertyAddress), orDash(t.Stage), t.Status)
	})
	c.OnOfferUpdate(func(o models.Offer) {
		p.printf(models.EventOfferUpdate, "%s offered %s on %s (%s)", o.BuyerName, money(o.Amount), orDash(o.PropertyAddress), o.Status)
	})
	c.OnPropertyInquiry(func(i models.WSPropertyInquiry) {
		p.printf(models.EventPropertyInquiry, "%s asked about %s", i.Name, orDash(i.PropertyAddress))
	})
	c.OnTaskCreated(func(t models.Task) {
		p.printf(models.EventTaskCreated, "[%s] %s (%s)", t.Priority, t.Title, t.Source)
	})
	c.OnDeadlineApproaching(func(d models.WSDeadlineApproaching) {
		p.printf(models.EventDeadlineApproaching, "%s %s in %d day(s)", d.PropertyAddress, d.Deadline, d.DaysRemaining)
	})

	c.OnConnected(func() { fmt.Fprintln(status, "Connected") })
	c.OnDisconnected(func() { fmt.Fprintln(status, "Disconnected, retrying...") })
	c.OnMaxReconnectAttemptsReached(func() {
		select {
		case done <- errReconnectExhausted:
		default:
		}
	})
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
