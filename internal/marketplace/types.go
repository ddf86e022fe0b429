package marketplace

import "time"

// Lead statuses as tracked by the upstream marketplace.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQuoted    = "quoted"
	StatusBooked    = "booked"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
)

// Message senders.
const (
	SenderCustomer = "customer"
	SenderBusiness = "business"
)

// Lead is an inbound service request from the marketplace. Immutable once
// fetched; the engine owns it for the duration of one processing pass.
type Lead struct {
	ID              string     `json:"id" validate:"required"`
	CustomerName    string     `json:"customer_name" validate:"required"`
	CustomerEmail   string     `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	ServiceCategory string     `json:"service_category" validate:"required"`
	Description     string     `json:"description" validate:"required"`
	BudgetMin       float64    `json:"budget_min,omitempty"`
	BudgetMax       float64    `json:"budget_max,omitempty"`
	PreferredDate   *time.Time `json:"preferred_date,omitempty"`
	Location        string     `json:"location,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasBudget reports whether the lead carries a usable budget range.
func (l Lead) HasBudget() bool {
	return l.BudgetMax > 0 && l.BudgetMax >= l.BudgetMin
}

// Message is a conversation message tied to a lead.
type Message struct {
	ID      string    `json:"id" validate:"required"`
	LeadID  string    `json:"lead_id" validate:"required"`
	Sender  string    `json:"sender" validate:"required,oneof=customer business"`
	Content string    `json:"content" validate:"required"`
	SentAt  time.Time `json:"timestamp"`
}
