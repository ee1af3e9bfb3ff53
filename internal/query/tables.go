package query

import (
	"github.com/propdesk/propdesk/internal/models"
)

var LeadTable = Table[models.Lead]{
	Search: []func(models.Lead) string{
		func(l models.Lead) string { return l.Name },
		func(l models.Lead) string { return l.Email },
		func(l models.Lead) string { return l.Phone },
		func(l models.Lead) string { return l.PreferredLocation },
		func(l models.Lead) string { return l.ID },
	},
	Fields: map[string]Field[models.Lead]{
		"id":              func(l models.Lead) Value { return String(l.ID) },
		"name":            func(l models.Lead) Value { return String(l.Name) },
		"email":           func(l models.Lead) Value { return String(l.Email) },
		"status":          func(l models.Lead) Value { return String(l.Status) },
		"source":          func(l models.Lead) Value { return String(l.Source) },
		"property_type":   func(l models.Lead) Value { return String(l.PropertyType) },
		"timeline":        func(l models.Lead) Value { return String(l.Timeline) },
		"assigned_agent":  func(l models.Lead) Value { return String(l.AssignedAgent) },
		"score":           func(l models.Lead) Value { return Int(l.Score) },
		"budget_min":      func(l models.Lead) Value { return Number(l.BudgetMin) },
		"budget_max":      func(l models.Lead) Value { return Number(l.BudgetMax) },
		"last_contact_at": func(l models.Lead) Value { return TimePtr(l.LastContactAt) },
		"created_at":      func(l models.Lead) Value { return Time(l.CreatedAt) },
		"updated_at":      func(l models.Lead) Value { return Time(l.UpdatedAt) },
	},
	Tags: func(l models.Lead) []string { return l.Tags },
}

var PropertyTable = Table[models.Property]{
	Search: []func(models.Property) string{
		func(p models.Property) string { return p.Address },
		func(p models.Property) string { return p.City },
		func(p models.Property) string { return p.State },
		func(p models.Property) string { return p.Zip },
		func(p models.Property) string { return p.ListingAgent },
		func(p models.Property) string { return p.ID },
	},
	Fields: map[string]Field[models.Property]{
		"id":            func(p models.Property) Value { return String(p.ID) },
		"address":       func(p models.Property) Value { return String(p.Address) },
		"city":          func(p models.Property) Value { return String(p.City) },
		"state":         func(p models.Property) Value { return String(p.State) },
		"status":        func(p models.Property) Value { return String(p.Status) },
		"property_type": func(p models.Property) Value { return String(p.PropertyType) },
		"listing_agent": func(p models.Property) Value { return String(p.ListingAgent) },
		"price":         func(p models.Property) Value { return Number(p.Price) },
		"bedrooms":      func(p models.Property) Value { return Int(p.Bedrooms) },
		"bathrooms":     func(p models.Property) Value { return Number(p.Bathrooms) },
		"square_feet":   func(p models.Property) Value { return Int(p.SquareFeet) },
		"listed_at":     func(p models.Property) Value { return Time(p.ListedAt) },
	},
	Tags: func(p models.Property) []string { return p.Features },
}

var OfferTable = Table[models.Offer]{
	Search: []func(models.Offer) string{
		func(o models.Offer) string { return o.BuyerName },
		func(o models.Offer) string { return o.BuyerAgent },
		func(o models.Offer) string { return o.PropertyAddress },
		func(o models.Offer) string { return o.ID },
	},
	Fields: map[string]Field[models.Offer]{
		"id":               func(o models.Offer) Value { return String(o.ID) },
		"property_id":      func(o models.Offer) Value { return String(o.PropertyID) },
		"property_address": func(o models.Offer) Value { return String(o.PropertyAddress) },
		"buyer_name":       func(o models.Offer) Value { return String(o.BuyerName) },
		"status":           func(o models.Offer) Value { return String(o.Status) },
		"financing_type":   func(o models.Offer) Value { return String(o.FinancingType) },
		"amount":           func(o models.Offer) Value { return Number(o.Amount) },
		"earnest_money":    func(o models.Offer) Value { return Number(o.EarnestMoney) },
		"submitted_at":     func(o models.Offer) Value { return Time(o.SubmittedAt) },
		"expires_at":       func(o models.Offer) Value { return TimePtr(o.ExpiresAt) },
	},
	Tags: func(o models.Offer) []string { return o.Contingencies },
}

var TransactionTable = Table[models.Transaction]{
	Search: []func(models.Transaction) string{
		func(t models.Transaction) string { return t.PropertyAddress },
		func(t models.Transaction) string { return t.BuyerName },
		func(t models.Transaction) string { return t.SellerName },
		func(t models.Transaction) string { return t.ID },
	},
	Fields: map[string]Field[models.Transaction]{
		"id":               func(t models.Transaction) Value { return String(t.ID) },
		"property_id":      func(t models.Transaction) Value { return String(t.PropertyID) },
		"property_address": func(t models.Transaction) Value { return String(t.PropertyAddress) },
		"stage":            func(t models.Transaction) Value { return String(t.Stage) },
		"status":           func(t models.Transaction) Value { return String(t.Status) },
		"price":            func(t models.Transaction) Value { return Number(t.Price) },
		"commission":       func(t models.Transaction) Value { return Number(t.Commission) },
		"closing_date":     func(t models.Transaction) Value { return TimePtr(t.ClosingDate) },
		"created_at":       func(t models.Transaction) Value { return Time(t.CreatedAt) },
		"updated_at":       func(t models.Transaction) Value { return Time(t.UpdatedAt) },
	},
}

var ConversationTable = Table[models.Conversation]{
	Search: []func(models.Conversation) string{
		func(c models.Conversation) string { return c.ContactName },
		func(c models.Conversation) string { return c.LastMessage },
	},
	Fields: map[string]Field[models.Conversation]{
		"lead_id":      func(c models.Conversation) Value { return String(c.LeadID) },
		"contact_name": func(c models.Conversation) Value { return String(c.ContactName) },
		"channel":      func(c models.Conversation) Value { return String(c.Channel) },
		"unread_count": func(c models.Conversation) Value { return Int(c.UnreadCount) },
		"updated_at":   func(c models.Conversation) Value { return Time(c.UpdatedAt) },
	},
}

var AppointmentTable = Table[models.Appointment]{
	Search: []func(models.Appointment) string{
		func(a models.Appointment) string { return a.Title },
		func(a models.Appointment) string { return a.Location },
		func(a models.Appointment) string { return a.Notes },
	},
	Fields: map[string]Field[models.Appointment]{
		"type":        func(a models.Appointment) Value { return String(a.Type) },
		"lead_id":     func(a models.Appointment) Value { return String(a.LeadID) },
		"property_id": func(a models.Appointment) Value { return String(a.PropertyID) },
		"starts_at":   func(a models.Appointment) Value { return Time(a.StartsAt) },
	},
}

var TaskTable = Table[models.Task]{
	Search: []func(models.Task) string{
		func(t models.Task) string { return t.Title },
		func(t models.Task) string { return t.Description },
	},
	Fields: map[string]Field[models.Task]{
		"priority":   func(t models.Task) Value { return String(t.Priority) },
		"status":     func(t models.Task) Value { return String(t.Status) },
		"source":     func(t models.Task) Value { return String(t.Source) },
		"lead_id":    func(t models.Task) Value { return String(t.LeadID) },
		"due_at":     func(t models.Task) Value { return TimePtr(t.DueAt) },
		"created_at": func(t models.Task) Value { return Time(t.CreatedAt) },
	},
}
