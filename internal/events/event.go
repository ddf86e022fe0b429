// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadpilot_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Engine Domain Events
// =============================================================================

// LeadProcessed is published after a lead's state machine reaches a terminal
// or failed outcome and the record has been committed.
type LeadProcessed struct {
	BaseEvent
	LeadID       string `json:"leadId"`
	Outcome      string `json:"outcome"`
	Intent       string `json:"intent"`
	ResponseText string `json:"responseText"`
}

func (LeadProcessed) EventName() string { return "lead.processed" }

// BookingCreated is published when a calendar event is created for a lead.
type BookingCreated struct {
	BaseEvent
	LeadID  string    `json:"leadId"`
	EventID string    `json:"eventId"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

func (BookingCreated) EventName() string { return "booking.created" }

// AuthExpired is published when an external service rejects our credentials.
// The cycle aborts and the operator must refresh credentials out-of-band.
type AuthExpired struct {
	BaseEvent
	Service string `json:"service"`
	Reason  string `json:"reason"`
}

func (AuthExpired) EventName() string { return "auth.expired" }

// CycleCompleted is published at the end of every automation cycle.
type CycleCompleted struct {
	BaseEvent
	Fetched int `json:"fetched"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (CycleCompleted) EventName() string { return "cycle.completed" }
