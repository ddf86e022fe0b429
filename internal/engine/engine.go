// Package engine implements the automation cycle: fetch leads, drop the ones
// already handled, generate replies, book appointments, send, and record.
package engine

import (
	"context"
	"errors"
	"time"

	"leadpilot_backend/internal/calendar"
	"leadpilot_backend/internal/dedup"
	"leadpilot_backend/internal/events"
	"leadpilot_backend/internal/marketplace"
	"leadpilot_backend/internal/responder"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/clock"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

// CycleStats summarizes one pass over the available leads.
type CycleStats struct {
	Fetched int
	Sent    int
	Skipped int
	Failed  int
}

// Engine orchestrates one processing pass. Leads are handled sequentially:
// each lead's state machine runs to completion (or a recorded failure) before
// the next begins, which keeps the dedup store's single-writer assumption.
type Engine struct {
	source        marketplace.Client
	store         Store
	generator     *responder.Generator
	calendar      Calendar
	followUps     FollowUpScheduler
	bus           events.Bus
	clk           clock.Clock
	cfg           config.EngineConfig
	business      config.BusinessConfig
	followUpDelay time.Duration
	log           *logger.Logger

	// calendarDown latches the calendar off for the remainder of a cycle
	// after its credentials are rejected. Cycles run on a single goroutine.
	calendarDown bool
}

// Config wires the engine's collaborators.
type Config struct {
	Source        marketplace.Client
	Store         Store
	Generator     *responder.Generator
	Calendar      Calendar
	FollowUps     FollowUpScheduler
	Bus           events.Bus
	Clock         clock.Clock
	Engine        config.EngineConfig
	Business      config.BusinessConfig
	FollowUpDelay time.Duration
	Logger        *logger.Logger
}

// New creates the engine.
func New(cfg Config) *Engine {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	followUpDelay := cfg.FollowUpDelay
	if followUpDelay <= 0 {
		followUpDelay = 48 * time.Hour
	}
	return &Engine{
		source:        cfg.Source,
		store:         cfg.Store,
		generator:     cfg.Generator,
		calendar:      cfg.Calendar,
		followUps:     cfg.FollowUps,
		bus:           cfg.Bus,
		clk:           clk,
		cfg:           cfg.Engine,
		business:      cfg.Business,
		followUpDelay: followUpDelay,
		log:           cfg.Logger,
	}
}

// RunCycle executes one full pass: the lead pass, then the message pass.
// Per-lead failures are recorded and never abort the cycle; an AuthExpired
// condition aborts the remainder of the cycle (no point retrying with dead
// credentials) without crashing the process. A fetch failure abandons the
// cycle entirely.
func (e *Engine) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	e.calendarDown = false

	leads, err := e.fetchLeads(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthExpired) {
			e.raiseAuthExpired(authService(err), err)
		}
		return stats, err
	}
	stats.Fetched = len(leads)

	for _, lead := range leads {
		// Shutdown is honored between leads so an in-flight lead always
		// finishes its send-then-record sequence.
		if ctx.Err() != nil {
			e.log.Info("shutdown requested, stopping cycle", "remaining", stats.Fetched-stats.Sent-stats.Skipped-stats.Failed)
			return stats, nil
		}

		outcome, err := e.processLead(ctx, lead)
		switch outcome {
		case dedup.OutcomeSent:
			stats.Sent++
		case dedup.OutcomeSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}

		if apperr.Is(err, apperr.KindAuthExpired) {
			e.raiseAuthExpired(authService(err), err)
			e.log.CycleSummary(stats.Fetched, stats.Sent, stats.Skipped, stats.Failed)
			return stats, nil
		}
	}

	if err := e.processMessages(ctx); err != nil {
		if apperr.Is(err, apperr.KindAuthExpired) {
			e.raiseAuthExpired(authService(err), err)
		} else {
			e.log.Error("message pass failed", "error", err)
		}
	}

	e.log.CycleSummary(stats.Fetched, stats.Sent, stats.Skipped, stats.Failed)
	if e.bus != nil {
		e.bus.Publish(ctx, events.CycleCompleted{
			BaseEvent: events.NewBaseEvent(),
			Fetched:   stats.Fetched,
			Sent:      stats.Sent,
			Skipped:   stats.Skipped,
			Failed:    stats.Failed,
		})
	}
	return stats, nil
}

func (e *Engine) fetchLeads(ctx context.Context) ([]marketplace.Lead, error) {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.source.FetchNewLeads(callCtx)
}

// processLead runs one lead through the state machine. The returned outcome
// matches what was recorded in the dedup store.
func (e *Engine) processLead(parent context.Context, lead marketplace.Lead) (string, error) {
	// Detach from the shutdown signal: once a lead is started, its external
	// calls run to completion under their own timeouts.
	ctx := context.WithoutCancel(parent)
	log := e.log.WithLeadID(lead.ID)

	processed, err := e.store.HasProcessed(ctx, lead.ID)
	if err != nil {
		log.DatabaseError("HasProcessed", err)
		return dedup.OutcomeFailed, err
	}
	if processed {
		log.Debug("lead already processed, skipping")
		return dedup.OutcomeSkipped, nil
	}

	log.Info("processing new lead", "customer", lead.CustomerName, "category", lead.ServiceCategory)

	resp, err := e.generate(ctx, lead)
	if err != nil {
		return e.failLead(ctx, lead.ID, "generating", "", err)
	}

	text, err := e.routeReply(ctx, lead, resp)
	if err != nil {
		return e.failLead(ctx, lead.ID, "routing", "", err)
	}

	bookingNote, err := e.ensureBooking(ctx, lead, resp)
	if err != nil {
		if e.cfg.GetOnScheduleFailure() == config.ScheduleFailureFailLead {
			// Scheduling failures are calendar-side: record the lead as
			// failed but never abort the marketplace pass for them.
			outcome, _ := e.failLead(ctx, lead.ID, "scheduling", text, err)
			return outcome, nil
		}
		log.LeadFailure(lead.ID, "scheduling", apperr.GetKind(err).String(), err)
		bookingNote = e.generator.Templates().BookingFallbackNote
	}
	text += bookingNote

	if err := e.send(ctx, lead.ID, text); err != nil {
		return e.failLead(ctx, lead.ID, "sending", text, err)
	}

	// Durable commit point: send-then-record. A crash between the two is
	// caught up on the next cycle as an at-least-once send.
	if err := e.store.RecordOutcome(ctx, dedup.RecordOutcomeParams{
		LeadID:       lead.ID,
		Outcome:      dedup.OutcomeSent,
		ResponseText: text,
		ProcessedAt:  e.clk.Now(),
	}); err != nil {
		log.DatabaseError("RecordOutcome", err)
		return dedup.OutcomeFailed, err
	}

	e.afterSend(ctx, lead, resp)
	return dedup.OutcomeSent, nil
}

func (e *Engine) generate(ctx context.Context, lead marketplace.Lead) (responder.GeneratedResponse, error) {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	resp, err := e.generator.Generate(callCtx, lead)
	return resp, tagAuthService("ai", err)
}

func (e *Engine) send(ctx context.Context, leadID, text string) error {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.source.SendMessage(callCtx, leadID, text)
}

// routeReply finalizes the outbound text based on the analyzed intent.
func (e *Engine) routeReply(ctx context.Context, lead marketplace.Lead, resp responder.GeneratedResponse) (string, error) {
	switch resp.Analysis.Intent {
	case responder.IntentQuoteRequest:
		price := e.generator.ClampPrice(resp.Analysis, lead)
		callCtx, cancel := e.withTimeout(ctx)
		defer cancel()
		return e.generator.QuoteReply(callCtx, lead, price, resp.Analysis), nil

	case responder.IntentScheduling:
		if resp.Intent != nil || !e.calendarReady() {
			// A concrete time was named (booked below) or no calendar is
			// available; the generated text stands on its own.
			return resp.Text, nil
		}
		day := e.clk.Now().AddDate(0, 0, 7)
		if lead.PreferredDate != nil {
			day = *lead.PreferredDate
		}
		slots, err := e.suggestSlots(ctx, day)
		if err != nil {
			e.log.WithLeadID(lead.ID).Warn("slot suggestion failed, sending pending reply", "error", err)
			slots = nil
		}
		return e.generator.Templates().RenderSchedulingOffer(e.business, slots), nil

	default:
		return resp.Text, nil
	}
}

func (e *Engine) suggestSlots(ctx context.Context, day time.Time) ([]time.Time, error) {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	slots, err := e.calendar.SuggestSlots(callCtx, day, responder.DefaultBookingDuration, 3)
	if apperr.Is(err, apperr.KindAuthExpired) {
		e.noteCalendarAuthExpired(err)
	}
	return slots, err
}

// ensureBooking creates the calendar event for a scheduling intent, at most
// once per lead: an existing booking ref short-circuits creation, and a new
// ref is persisted before the reply goes out.
func (e *Engine) ensureBooking(ctx context.Context, lead marketplace.Lead, resp responder.GeneratedResponse) (string, error) {
	if resp.Intent == nil {
		return "", nil
	}
	if !e.calendarReady() {
		if e.calendarDown {
			return "", apperr.AuthExpired("calendar unavailable this cycle", nil)
		}
		return "", nil
	}
	log := e.log.WithLeadID(lead.ID)

	if ref, err := e.store.GetBookingRef(ctx, lead.ID); err != nil {
		log.DatabaseError("GetBookingRef", err)
		return "", err
	} else if ref != "" {
		log.Info("reusing existing booking", "event_id", ref)
		return "", nil
	}

	booking := calendar.Booking{
		LeadID:      lead.ID,
		Title:       e.business.GetServiceType() + " - " + lead.CustomerName,
		Description: "Lead ID: " + lead.ID + "\nService: " + e.business.GetServiceType(),
		Start:       resp.Intent.Start,
		End:         resp.Intent.End,
		Location:    lead.Location,
	}
	if lead.CustomerEmail != "" {
		booking.Attendees = []string{lead.CustomerEmail}
	}

	eventID, err := e.createBooking(ctx, booking)
	if err != nil {
		return "", err
	}

	// The ref is durable before the send so a crash here cannot double-book.
	if err := e.store.SetBookingRef(ctx, lead.ID, eventID); err != nil {
		log.DatabaseError("SetBookingRef", err)
		return "", err
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.BookingCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			EventID:   eventID,
			Start:     booking.Start,
			End:       booking.End,
		})
	}

	return "\n\n" + e.generator.Templates().RenderBookingConfirmation(e.business, booking.Start), nil
}

// createBooking verifies the slot is still free and inserts the event. A
// slot taken since the suggestion surfaces as a Conflict and follows the
// scheduling-failure policy like any other booking error.
func (e *Engine) createBooking(ctx context.Context, booking calendar.Booking) (string, error) {
	free, err := e.checkAvailability(ctx, booking.Start, booking.End)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthExpired) {
			e.noteCalendarAuthExpired(err)
			return "", err
		}
		e.log.Warn("availability check failed, attempting booking", "lead_id", booking.LeadID, "error", err)
	} else if !free {
		return "", apperr.Conflict("requested slot is no longer available", nil)
	}

	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	eventID, err := e.calendar.CreateBooking(callCtx, booking)
	if apperr.Is(err, apperr.KindAuthExpired) {
		e.noteCalendarAuthExpired(err)
	}
	return eventID, err
}

func (e *Engine) checkAvailability(ctx context.Context, start, end time.Time) (bool, error) {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.calendar.CheckAvailability(callCtx, start, end)
}

// afterSend performs the best-effort follow-through: upstream status update,
// follow-up scheduling, and the processed event. Failures here are logged,
// never fatal; the record is already committed.
func (e *Engine) afterSend(ctx context.Context, lead marketplace.Lead, resp responder.GeneratedResponse) {
	log := e.log.WithLeadID(lead.ID)

	status := marketplace.StatusContacted
	switch {
	case resp.Intent != nil:
		status = marketplace.StatusBooked
	case resp.Analysis.Intent == responder.IntentQuoteRequest:
		status = marketplace.StatusQuoted
	}
	if err := e.updateStatus(ctx, lead.ID, status); err != nil {
		log.Warn("lead status update failed", "status", status, "error", err)
	}

	if status == marketplace.StatusQuoted && e.followUps != nil {
		runAt := e.clk.Now().Add(e.followUpDelay)
		if err := e.followUps.ScheduleFollowUp(ctx, lead.ID, runAt); err != nil {
			log.Warn("follow-up scheduling failed", "error", err)
		}
	}

	if e.bus != nil {
		e.bus.Publish(ctx, events.LeadProcessed{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       lead.ID,
			Outcome:      dedup.OutcomeSent,
			Intent:       resp.Analysis.Intent,
			ResponseText: resp.Text,
		})
	}
}

func (e *Engine) updateStatus(ctx context.Context, leadID, status string) error {
	callCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.source.UpdateLeadStatus(callCtx, leadID, status)
}

// processMessages handles unanswered customer messages: analyze, reply, and
// for booking confirmations create the calendar event.
func (e *Engine) processMessages(parent context.Context) error {
	ctx := context.WithoutCancel(parent)

	callCtx, cancel := e.withTimeout(ctx)
	messages, err := e.source.FetchNewMessages(callCtx)
	cancel()
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if parent.Err() != nil {
			return nil
		}
		if msg.Sender == marketplace.SenderBusiness {
			continue
		}

		handled, err := e.store.HasProcessedMessage(ctx, msg.ID)
		if err != nil {
			e.log.DatabaseError("HasProcessedMessage", err)
			continue
		}
		if handled {
			continue
		}

		if err := e.processMessage(ctx, msg); apperr.Is(err, apperr.KindAuthExpired) {
			return err
		}
	}
	return nil
}

func (e *Engine) processMessage(ctx context.Context, msg marketplace.Message) error {
	log := e.log.WithLeadID(msg.LeadID)
	log.Info("processing new message", "message_id", msg.ID)

	callCtx, cancel := e.withTimeout(ctx)
	analysis, err := e.generator.AnalyzeMessage(callCtx, msg, nil)
	cancel()
	if err != nil {
		err = tagAuthService("ai", err)
		e.failMessage(ctx, msg, "", err)
		return err
	}

	text := analysis.SuggestedResponse
	switch analysis.Intent {
	case responder.IntentScheduling:
		if e.calendarReady() {
			slots, err := e.suggestSlots(ctx, e.clk.Now().AddDate(0, 0, 7))
			if err != nil {
				slots = nil
			}
			text = e.generator.Templates().RenderSchedulingOffer(e.business, slots)
		}

	case responder.IntentBooking:
		confirmation, err := e.confirmBooking(ctx, msg)
		if err != nil {
			log.LeadFailure(msg.LeadID, "scheduling", apperr.GetKind(err).String(), err)
		} else if confirmation != "" {
			text = confirmation
		}
	}

	if text == "" {
		text = "Thank you for your message. I'll review it and get back to you soon."
	}

	if err := e.send(ctx, msg.LeadID, text); err != nil {
		e.failMessage(ctx, msg, text, err)
		return err
	}

	if err := e.store.RecordMessageOutcome(ctx, msg.ID, msg.LeadID, dedup.OutcomeSent, text, ""); err != nil {
		log.DatabaseError("RecordMessageOutcome", err)
	}
	return nil
}

// confirmBooking creates the event for a customer booking confirmation,
// reusing any existing ref. The confirmed time is parsed from the message;
// without one, the next business morning is used.
func (e *Engine) confirmBooking(ctx context.Context, msg marketplace.Message) (string, error) {
	if !e.calendarReady() {
		return "", nil
	}

	if ref, err := e.store.GetBookingRef(ctx, msg.LeadID); err != nil {
		return "", err
	} else if ref != "" {
		return "", nil
	}

	intent := responder.ExtractIntent(msg.Content, e.clk.Now())
	if intent == nil {
		now := e.clk.Now().AddDate(0, 0, 1)
		start := time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, now.Location())
		intent = &responder.SchedulingIntent{Start: start, End: start.Add(responder.DefaultBookingDuration)}
	}

	eventID, err := e.createBooking(ctx, calendar.Booking{
		LeadID:      msg.LeadID,
		Title:       e.business.GetServiceType() + " appointment",
		Description: "Lead ID: " + msg.LeadID + "\nConfirmed via conversation",
		Start:       intent.Start,
		End:         intent.End,
	})
	if err != nil {
		return "", err
	}

	if err := e.store.SetBookingRef(ctx, msg.LeadID, eventID); err != nil {
		return "", err
	}

	if err := e.updateStatus(ctx, msg.LeadID, marketplace.StatusBooked); err != nil {
		e.log.WithLeadID(msg.LeadID).Warn("lead status update failed", "error", err)
	}

	return e.generator.Templates().RenderBookingConfirmation(e.business, intent.Start), nil
}

// failLead records the failure (retryable on a later cycle) and reports the
// outcome that was written.
func (e *Engine) failLead(ctx context.Context, leadID, stage, text string, cause error) (string, error) {
	kind := apperr.GetKind(cause)
	e.log.LeadFailure(leadID, stage, kind.String(), cause)

	if err := e.store.RecordOutcome(ctx, dedup.RecordOutcomeParams{
		LeadID:        leadID,
		Outcome:       dedup.OutcomeFailed,
		ResponseText:  text,
		FailureReason: kind.String() + ": " + cause.Error(),
		ProcessedAt:   e.clk.Now(),
	}); err != nil {
		e.log.DatabaseError("RecordOutcome", err)
	}
	return dedup.OutcomeFailed, cause
}

func (e *Engine) failMessage(ctx context.Context, msg marketplace.Message, text string, cause error) {
	kind := apperr.GetKind(cause)
	e.log.LeadFailure(msg.LeadID, "message", kind.String(), cause)
	if err := e.store.RecordMessageOutcome(ctx, msg.ID, msg.LeadID, dedup.OutcomeFailed, text, kind.String()+": "+cause.Error()); err != nil {
		e.log.DatabaseError("RecordMessageOutcome", err)
	}
}

func (e *Engine) calendarReady() bool {
	return e.calendar != nil && !e.calendarDown
}

// noteCalendarAuthExpired alerts the operator and stops calling the calendar
// for the rest of the cycle. Marketplace sends continue: only the booking
// side has dead credentials.
func (e *Engine) noteCalendarAuthExpired(cause error) {
	if e.calendarDown {
		return
	}
	e.calendarDown = true
	e.raiseAuthExpired("calendar", cause)
}

func (e *Engine) raiseAuthExpired(service string, cause error) {
	reason := "credentials rejected"
	if cause != nil {
		reason = cause.Error()
	}
	e.log.AuthEvent(service, false, reason)
	if e.bus != nil {
		e.bus.Publish(context.Background(), events.AuthExpired{
			BaseEvent: events.NewBaseEvent(),
			Service:   service,
			Reason:    reason,
		})
	}
}

// serviceAuthError names the upstream whose credentials were rejected so the
// operator alert points at the right service.
type serviceAuthError struct {
	service string
	err     error
}

func (e *serviceAuthError) Error() string { return e.service + ": " + e.err.Error() }
func (e *serviceAuthError) Unwrap() error { return e.err }

// tagAuthService attaches a service name to credential failures; other
// errors pass through untouched.
func tagAuthService(service string, err error) error {
	if err == nil || !apperr.Is(err, apperr.KindAuthExpired) {
		return err
	}
	return &serviceAuthError{service: service, err: err}
}

// authService resolves the tagged service on a credential failure. Untagged
// errors come from the marketplace client.
func authService(err error) string {
	var tagged *serviceAuthError
	if errors.As(err, &tagged) {
		return tagged.service
	}
	return "marketplace"
}

// withTimeout bounds one external call. Exceeding the timeout surfaces as a
// Transient failure from the client, never a hang.
func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.cfg.GetExternalCallTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
