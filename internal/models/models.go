package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Lead statuses as used by the qualification flow.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusHot       = "hot"
	LeadStatusWarm      = "warm"
	LeadStatusCold      = "cold"
	LeadStatusConverted = "converted"
	LeadStatusLost      = "lost"
)

type Lead struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	Source            string     `json:"source"`
	Status            string     `json:"status"`
	Score             int        `json:"score"`
	BudgetMin         float64    `json:"budget_min"`
	BudgetMax         float64    `json:"budget_max"`
	PreferredLocation string     `json:"preferred_location"`
	PropertyType      string     `json:"property_type"`
	Timeline          string     `json:"timeline"`
	Tags              []string   `json:"tags"`
	Notes             string     `json:"notes"`
	AssignedAgent     string     `json:"assigned_agent"`
	LastContactAt     *time.Time `json:"last_contact_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Property struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Zip          string    `json:"zip"`
	Price        float64   `json:"price"`
	Bedrooms     int       `json:"bedrooms"`
	Bathrooms    float64   `json:"bathrooms"`
	SquareFeet   int       `json:"square_feet"`
	PropertyType string    `json:"property_type"`
	Status       string    `json:"status"`
	Features     []string  `json:"features"`
	Description  string    `json:"description"`
	ListingAgent string    `json:"listing_agent"`
	Images       []string  `json:"images"`
	ListedAt     time.Time `json:"listed_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Offer struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"property_id"`
	PropertyAddress string     `json:"property_address"`
	BuyerName       string     `json:"buyer_name"`
	BuyerAgent      string     `json:"buyer_agent"`
	Amount          float64    `json:"amount"`
	EarnestMoney    float64    `json:"earnest_money"`
	FinancingType   string     `json:"financing_type"`
	Contingencies   []string   `json:"contingencies"`
	Status          string     `json:"status"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Transaction struct {
	ID              string     `json:"id"`
	PropertyID      string     `json:"property_id"`
	PropertyAddress string     `json:"property_address"`
	BuyerName       string     `json:"buyer_name"`
	SellerName      string     `json:"seller_name"`
	Price           float64    `json:"price"`
	Commission      float64    `json:"commission"`
	Stage           string     `json:"stage"`
	Status          string     `json:"status"`
	ClosingDate     *time.Time `json:"closing_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Conversation struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"lead_id"`
	ContactName string    `json:"contact_name"`
	Channel     string    `json:"channel"`
	LastMessage string    `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Direction      string    `json:"direction"` // "inbound" or "outbound"
	Body           string    `json:"body"`
	Flagged        bool      `json:"flagged"`
	CreatedAt      time.Time `json:"created_at"`
}

type Appointment struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Type       string     `json:"type"`
	LeadID     string     `json:"lead_id"`
	PropertyID string     `json:"property_id"`
	Location   string     `json:"location"`
	Notes      string     `json:"notes"`
	StartsAt   time.Time  `json:"starts_at"`
	EndsAt     time.Time  `json:"ends_at"`
	RemindedAt *time.Time `json:"reminded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	Source         string     `json:"source"` // "manual" or "ai"
	LeadID         string     `json:"lead_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Target    string    `json:"target"`
	TargetID  string    `json:"target_id"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
