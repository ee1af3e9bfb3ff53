package llm

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/models"
)

// Services wraps the model calls the CRM makes. Every method returns a usable
// answer: when the provider is unconfigured, unreachable or replies with
// something unusable, a fixed fallback is returned instead.
type Services struct {
	client  *Client
	timeout time.Duration

	// OnCall, when set, is told about every call and whether it fell back.
	OnCall func(operation string, fellBack bool)
}

func NewServices(client *Client) *Services {
	return &Services{client: client, timeout: 30 * time.Second}
}

func (s *Services) Configured() bool {
	return s.client != nil && s.client.IsConfigured()
}

func (s *Services) report(op string, err error) {
	if err != nil && err != ErrNotConfigured {
		logger.Warn("llm %s failed, using fallback: %v", op, err)
	}
	if s.OnCall != nil {
		s.OnCall(op, err != nil)
	}
}

func (s *Services) chat(ctx context.Context, system, user string, out interface{}) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.ChatJSON(ctx, system, user, out)
}

type LeadQualification struct {
	Score      int      `json:"score"`
	Status     string   `json:"status"`
	Tags       []string `json:"tags"`
	Reasoning  string   `json:"reasoning"`
	NextAction string   `json:"next_action"`
}

const qualifySystem = `You are a real estate lead qualification assistant.
Score the lead from 0 to 100 on purchase intent and readiness, classify it as
"hot", "warm" or "cold", and suggest the next action for the agent.
Respond with JSON: {"score": int, "status": string, "tags": [string], "reasoning": string, "next_action": string}`

func fallbackQualification() LeadQualification {
	return LeadQualification{
		Score:      50,
		Status:     models.LeadStatusWarm,
		Tags:       []string{},
		Reasoning:  "Automatic qualification unavailable",
		NextAction: "Follow up with the lead to confirm budget and timeline",
	}
}

func (s *Services) QualifyLead(ctx context.Context, lead models.Lead) LeadQualification {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", lead.Name)
	fmt.Fprintf(&b, "Source: %s\n", lead.Source)
	fmt.Fprintf(&b, "Budget: %s - %s\n", money(lead.BudgetMin), money(lead.BudgetMax))
	fmt.Fprintf(&b, "Preferred location: %s\n", lead.PreferredLocation)
	fmt.Fprintf(&b, "Property type: %s\n", lead.PropertyType)
	fmt.Fprintf(&b, "Timeline: %s\n", lead.Timeline)
	fmt.Fprintf(&b, "Notes: %s\n", lead.Notes)

	var q LeadQualification
	err := s.chat(ctx, qualifySystem, b.String(), &q)
	s.report("qualify_lead", err)
	if err != nil {
		return fallbackQualification()
	}
	return normalizeQualification(q)
}

func normalizeQualification(q LeadQualification) LeadQualification {
	if q.Score < 0 {
		q.Score = 0
	}
	if q.Score > 100 {
		q.Score = 100
	}
	switch q.Status {
	case models.LeadStatusHot, models.LeadStatusWarm, models.LeadStatusCold:
	default:
		q.Status = statusForScore(q.Score)
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	return q
}

func statusForScore(score int) string {
	switch {
	case score >= 80:
		return models.LeadStatusHot
	case score >= 50:
		return models.LeadStatusWarm
	}
	return models.LeadStatusCold
}

const descriptionSystem = `You write listing descriptions for residential real estate.
Write two short, factual, inviting paragraphs. Do not invent features.
Respond with JSON: {"description": string}`

func fallbackDescription(p models.Property) string {
	kind := p.PropertyType
	if kind == "" {
		kind = "home"
	}
	where := p.Address
	if p.City != "" {
		where += ", " + p.City
	}
	desc := fmt.Sprintf("Welcome to %s. This %d-bedroom, %s-bathroom %s offers %d square feet of living space",
		where, p.Bedrooms, strconv.FormatFloat(p.Bathrooms, 'f', -1, 64), kind, p.SquareFeet)
	if len(p.Features) > 0 {
		desc += " with " + strings.Join(p.Features, ", ")
	}
	return desc + fmt.Sprintf(". Offered at %s.", money(p.Price))
}

func (s *Services) GeneratePropertyDescription(ctx context.Context, p models.Property) string {
	prompt := fmt.Sprintf("Address: %s, %s %s %s\nType: %s\nPrice: %s\nBedrooms: %d\nBathrooms: %v\nSquare feet: %d\nFeatures: %s",
		p.Address, p.City, p.State, p.Zip, p.PropertyType, money(p.Price),
		p.Bedrooms, p.Bathrooms, p.SquareFeet, strings.Join(p.Features, ", "))

	var out struct {
		Description string `json:"description"`
	}
	err := s.chat(ctx, descriptionSystem, prompt, &out)
	if err == nil && strings.TrimSpace(out.Description) == "" {
		err = ErrEmptyResponse
	}
	s.report("property_description", err)
	if err != nil {
		return fallbackDescription(p)
	}
	return strings.TrimSpace(out.Description)
}

type ExtractedTask struct {
	Title    string `json:"title"`
	DueDate  string `json:"due_date,omitempty"`
	Priority string `json:"priority"`
}

const tasksSystem = `Extract concrete follow-up tasks for a real estate agent from the message.
Only include actions someone must take. Priority is "low", "medium" or "high".
Respond with JSON: {"tasks": [{"title": string, "due_date": "YYYY-MM-DD or empty", "priority": string}]}`

func (s *Services) ExtractTasks(ctx context.Context, message string) []ExtractedTask {
	if strings.TrimSpace(message) == "" {
		return []ExtractedTask{}
	}

	var out struct {
		Tasks []ExtractedTask `json:"tasks"`
	}
	err := s.chat(ctx, tasksSystem, message, &out)
	s.report("extract_tasks", err)
	if err != nil {
		return []ExtractedTask{}
	}

	tasks := make([]ExtractedTask, 0, len(out.Tasks))
	for _, t := range out.Tasks {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		switch t.Priority {
		case "low", "medium", "high":
		default:
			t.Priority = "medium"
		}
		tasks = append(tasks, t)
	}
	return tasks
}

type Transcript struct {
	Text        string   `json:"text"`
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

const summarySystem = `Summarize this call between a real estate agent and a client in two or three sentences
and list any action items.
Respond with JSON: {"summary": string, "action_items": [string]}`

func (s *Services) TranscribeAndSummarize(ctx context.Context, audio io.Reader, filename string) Transcript {
	fallback := Transcript{Summary: "Transcription unavailable", ActionItems: []string{}}
	if !s.Configured() {
		s.report("transcribe", ErrNotConfigured)
		return fallback
	}

	tctx, cancel := context.WithTimeout(ctx, 2*s.timeout)
	text, err := s.client.Transcribe(tctx, audio, filename)
	cancel()
	if err == nil && text == "" {
		err = ErrEmptyResponse
	}
	s.report("transcribe", err)
	if err != nil {
		return fallback
	}

	out := Transcript{Text: text, ActionItems: []string{}}
	var summary struct {
		Summary     string   `json:"summary"`
		ActionItems []string `json:"action_items"`
	}
	err = s.chat(ctx, summarySystem, text, &summary)
	s.report("summarize", err)
	if err != nil || summary.Summary == "" {
		// Keep the transcript even when the summary fails.
		out.Summary = "Summary unavailable"
		return out
	}
	out.Summary = summary.Summary
	if summary.ActionItems != nil {
		out.ActionItems = summary.ActionItems
	}
	return out
}

type ModerationResult struct {
	Flagged    bool     `json:"flagged"`
	Categories []string `json:"categories"`
}

func (s *Services) Moderate(ctx context.Context, text string) ModerationResult {
	fallback := ModerationResult{Categories: []string{}}
	if !s.Configured() {
		s.report("moderate", ErrNotConfigured)
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.client.Moderate(ctx, text)
	s.report("moderate", err)
	if err != nil {
		return fallback
	}

	res := resp.Results[0]
	out := ModerationResult{Flagged: res.Flagged, Categories: []string{}}
	for name, hit := range res.Categories {
		if hit {
			out.Categories = append(out.Categories, name)
		}
	}
	sort.Strings(out.Categories)
	return out
}

func money(v float64) string {
	if v <= 0 {
		return "unspecified"
	}
	s := strconv.FormatFloat(v, 'f', 0, 64)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "$" + b.String()
}
