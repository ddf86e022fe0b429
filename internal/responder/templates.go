package responder

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"leadpilot_backend/platform/config"
)

// Templates are the canned reply bodies used when the model produces nothing
// usable and for fixed-format messages (quotes, confirmations, follow-ups).
// Any field can be overridden from a YAML file; %s/%v-style placeholders are
// filled positionally by the Render helpers.
type Templates struct {
	Quote               string `yaml:"quote"`
	General             string `yaml:"general"`
	SchedulingOffer     string `yaml:"scheduling_offer"`
	SchedulingPending   string `yaml:"scheduling_pending"`
	BookingConfirmation string `yaml:"booking_confirmation"`
	BookingFallbackNote string `yaml:"booking_fallback_note"`
	FollowUp            string `yaml:"follow_up"`
}

func defaultTemplates() Templates {
	return Templates{
		Quote: `Thank you for your interest in our %s services!

Based on your requirements, I'm pleased to offer you a quote of $%.2f.

This quote is valid for the next 7 days. If you have any questions or would like to discuss the details further, please don't hesitate to reach out.

Best regards,
%s`,
		General: `Thank you for your interest in %s!

I'd be happy to discuss your %s needs. Please let me know:
- When you're looking to schedule the service
- Any specific requirements you have
- Your preferred budget range

I'll provide you with a detailed quote and available scheduling options.

Best regards,
%s`,
		SchedulingOffer: `Thank you for your interest in scheduling our %s services!

Based on your preferences, I have the following time slots available:

%s

Please let me know which time works best for you, and I'll confirm the appointment.

Best regards,
%s`,
		SchedulingPending: `Thank you for your scheduling request. I'm currently checking my availability and will get back to you within a few hours with available time slots.

Best regards,
%s`,
		BookingConfirmation: `Great! Your %s appointment has been confirmed for %s.

You'll receive a calendar invitation shortly. If you need to reschedule or have any questions, please don't hesitate to reach out.

Looking forward to working with you!

Best regards,
%s`,
		BookingFallbackNote: `

PS: I'll send over a calendar invitation to confirm the exact time shortly.`,
		FollowUp: `Hi, just following up on the quote I sent over for your %s request. I'd love to answer any questions you might have. Is there anything holding you back?

Best regards,
%s`,
	}
}

// LoadTemplates returns the default templates, merged with overrides from
// the given YAML file when path is non-empty.
func LoadTemplates(path string) (Templates, error) {
	templates := defaultTemplates()
	if path == "" {
		return templates, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return templates, nil
	}
	if err != nil {
		return Templates{}, fmt.Errorf("read templates file: %w", err)
	}

	var overrides Templates
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return Templates{}, fmt.Errorf("parse templates file: %w", err)
	}

	merge(&templates.Quote, overrides.Quote)
	merge(&templates.General, overrides.General)
	merge(&templates.SchedulingOffer, overrides.SchedulingOffer)
	merge(&templates.SchedulingPending, overrides.SchedulingPending)
	merge(&templates.BookingConfirmation, overrides.BookingConfirmation)
	merge(&templates.BookingFallbackNote, overrides.BookingFallbackNote)
	merge(&templates.FollowUp, overrides.FollowUp)

	return templates, nil
}

func merge(dst *string, override string) {
	if strings.TrimSpace(override) != "" {
		*dst = override
	}
}

// RenderQuote fills the quote template.
func (t Templates) RenderQuote(cfg config.BusinessConfig, price float64) string {
	return fmt.Sprintf(t.Quote, strings.ToLower(cfg.GetServiceType()), price, cfg.GetBusinessName())
}

// RenderGeneral fills the general-inquiry template.
func (t Templates) RenderGeneral(cfg config.BusinessConfig) string {
	return fmt.Sprintf(t.General, cfg.GetBusinessName(), strings.ToLower(cfg.GetServiceType()), cfg.GetBusinessName())
}

// RenderSchedulingOffer lists available slots for the customer to pick from.
func (t Templates) RenderSchedulingOffer(cfg config.BusinessConfig, slots []time.Time) string {
	if len(slots) == 0 {
		return fmt.Sprintf(t.SchedulingPending, cfg.GetBusinessName())
	}

	var options strings.Builder
	for i, slot := range slots {
		if i > 0 {
			options.WriteString("\n")
		}
		options.WriteString("• " + slot.Format("Monday, January 2 at 3:04 PM"))
	}
	return fmt.Sprintf(t.SchedulingOffer, strings.ToLower(cfg.GetServiceType()), options.String(), cfg.GetBusinessName())
}

// RenderBookingConfirmation confirms an appointment at the given start time.
func (t Templates) RenderBookingConfirmation(cfg config.BusinessConfig, start time.Time) string {
	return fmt.Sprintf(t.BookingConfirmation,
		strings.ToLower(cfg.GetServiceType()),
		start.Format("Monday, January 2 at 3:04 PM"),
		cfg.GetBusinessName())
}

// RenderFollowUp fills the follow-up nudge template.
func (t Templates) RenderFollowUp(cfg config.BusinessConfig) string {
	return fmt.Sprintf(t.FollowUp, strings.ToLower(cfg.GetServiceType()), cfg.GetBusinessName())
}
