package engine

import (
	"context"
	"time"

	"leadpilot_backend/internal/calendar"
	"leadpilot_backend/internal/dedup"
)

// Store is the dedup store capability the engine depends on. The pgx
// repository in internal/dedup is the production implementation.
type Store interface {
	HasProcessed(ctx context.Context, leadID string) (bool, error)
	RecordOutcome(ctx context.Context, params dedup.RecordOutcomeParams) error
	GetBookingRef(ctx context.Context, leadID string) (string, error)
	SetBookingRef(ctx context.Context, leadID, eventID string) error
	HasProcessedMessage(ctx context.Context, messageID string) (bool, error)
	RecordMessageOutcome(ctx context.Context, messageID, leadID, outcome, responseText, failureReason string) error
}

// Calendar is the booking capability. Nil-able: when the calendar is
// disabled the engine sends replies without bookings.
type Calendar interface {
	CreateBooking(ctx context.Context, booking calendar.Booking) (string, error)
	CheckAvailability(ctx context.Context, start, end time.Time) (bool, error)
	SuggestSlots(ctx context.Context, day time.Time, duration time.Duration, limit int) ([]time.Time, error)
}

// FollowUpScheduler enqueues a delayed follow-up check for a quoted lead.
// Nil-able: without a task backend no follow-ups are scheduled.
type FollowUpScheduler interface {
	ScheduleFollowUp(ctx context.Context, leadID string, runAt time.Time) error
}
