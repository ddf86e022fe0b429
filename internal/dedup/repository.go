// Package dedup persists which leads and messages have already been handled.
// It is the engine's single durable commit point: a lead id appears here at
// most once with a terminal outcome, across process restarts.
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcomes for processed records. "failed" is retryable on a later cycle;
// "sent" and "skipped" are terminal.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Record is one processed-lead row.
type Record struct {
	LeadID         string
	Outcome        string
	ResponseText   string
	FailureReason  *string
	BookingEventID *string
	FollowUpSentAt *time.Time
	ProcessedAt    time.Time
}

// RecordOutcomeParams captures one outcome write.
type RecordOutcomeParams struct {
	LeadID        string
	Outcome       string
	ResponseText  string
	FailureReason string
	ProcessedAt   time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HasProcessed reports whether the lead already has a terminal record.
// A "failed" record does not count: those leads are retried.
func (r *Repository) HasProcessed(ctx context.Context, leadID string) (bool, error) {
	var outcome string
	err := r.pool.QueryRow(ctx, `
		SELECT outcome FROM processed_leads WHERE lead_id = $1
	`, leadID).Scan(&outcome)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return outcome == OutcomeSent || outcome == OutcomeSkipped, nil
}

// RecordOutcome writes the lead's outcome. The write is idempotent: a record
// that already reached a terminal outcome is never overwritten, so calling
// this twice with "sent" leaves the store unchanged. The check-then-write is
// a single conditional upsert, atomic per lead id.
func (r *Repository) RecordOutcome(ctx context.Context, params RecordOutcomeParams) error {
	processedAt := params.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	var failureReason *string
	if params.FailureReason != "" {
		failureReason = &params.FailureReason
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_leads (lead_id, outcome, response_text, failure_reason, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lead_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			response_text = EXCLUDED.response_text,
			failure_reason = EXCLUDED.failure_reason,
			processed_at = EXCLUDED.processed_at
		WHERE processed_leads.outcome NOT IN ('sent', 'skipped')
	`, params.LeadID, params.Outcome, params.ResponseText, failureReason, processedAt)
	return err
}

// GetBookingRef returns the calendar event id previously created for the
// lead, or empty when none exists.
func (r *Repository) GetBookingRef(ctx context.Context, leadID string) (string, error) {
	var eventID *string
	err := r.pool.QueryRow(ctx, `
		SELECT booking_event_id FROM processed_leads WHERE lead_id = $1
	`, leadID).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if eventID == nil {
		return "", nil
	}
	return *eventID, nil
}

// SetBookingRef persists the calendar event id for the lead immediately after
// creation, before the reply is sent. If no record exists yet a provisional
// "failed" row is inserted so a crash between booking and send leaves the
// lead retryable with its booking ref intact (no duplicate event on retry).
func (r *Repository) SetBookingRef(ctx context.Context, leadID, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_leads (lead_id, outcome, failure_reason, booking_event_id)
		VALUES ($1, 'failed', 'booking created, send pending', $2)
		ON CONFLICT (lead_id) DO UPDATE SET
			booking_event_id = EXCLUDED.booking_event_id
		WHERE processed_leads.booking_event_id IS NULL
	`, leadID, eventID)
	return err
}

// OutcomeCounts aggregates processed leads per outcome for the status API.
func (r *Repository) OutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT outcome, COUNT(*) FROM processed_leads GROUP BY outcome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

// NeedsFollowUp reports whether the lead was sent a reply, has not been
// followed up yet, and the reply is older than the given delay.
func (r *Repository) NeedsFollowUp(ctx context.Context, leadID string, olderThan time.Time) (bool, error) {
	var due bool
	err := r.pool.QueryRow(ctx, `
		SELECT processed_at <= $2 AND followup_sent_at IS NULL
		FROM processed_leads
		WHERE lead_id = $1 AND outcome = 'sent'
	`, leadID, olderThan).Scan(&due)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return due, nil
}

// MarkFollowUpSent stamps the follow-up so it is sent at most once per lead.
func (r *Repository) MarkFollowUpSent(ctx context.Context, leadID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE processed_leads SET followup_sent_at = now()
		WHERE lead_id = $1 AND followup_sent_at IS NULL
	`, leadID)
	return err
}

// HasProcessedMessage reports whether an inbound message was already handled.
func (r *Repository) HasProcessedMessage(ctx context.Context, messageID string) (bool, error) {
	var outcome string
	err := r.pool.QueryRow(ctx, `
		SELECT outcome FROM processed_messages WHERE message_id = $1
	`, messageID).Scan(&outcome)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return outcome == OutcomeSent || outcome == OutcomeSkipped, nil
}

// RecordMessageOutcome writes the message's outcome with the same
// never-overwrite-terminal semantics as RecordOutcome.
func (r *Repository) RecordMessageOutcome(ctx context.Context, messageID, leadID, outcome, responseText, failureReason string) error {
	var reason *string
	if failureReason != "" {
		reason = &failureReason
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, lead_id, outcome, response_text, failure_reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			response_text = EXCLUDED.response_text,
			failure_reason = EXCLUDED.failure_reason,
			processed_at = now()
		WHERE processed_messages.outcome NOT IN ('sent', 'skipped')
	`, messageID, leadID, outcome, responseText, reason)
	return err
}
