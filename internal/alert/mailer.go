// Package alert notifies the operator by email when the bot hits a condition
// it cannot recover from on its own, such as expired credentials.
package alert

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"leadpilot_backend/internal/events"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// Mailer sends operator alerts over SMTP via go-mail. A nil Mailer is a
// no-op so callers can wire it unconditionally.
type Mailer struct {
	cfg config.AlertConfig
	log *logger.Logger

	// rate limit: at most one alert per subject per cooldown window
	mu       sync.Mutex
	lastSent map[string]time.Time
	cooldown time.Duration
}

func NewMailer(cfg config.AlertConfig, log *logger.Logger) *Mailer {
	if !cfg.IsAlertEnabled() {
		return nil
	}
	return &Mailer{
		cfg:      cfg,
		log:      log,
		lastSent: make(map[string]time.Time),
		cooldown: time.Hour,
	}
}

// Subscribe attaches the mailer to the event bus. Only credential expiry is
// alert-worthy today; transient failures are visible in the logs.
func (m *Mailer) Subscribe(bus events.Bus) {
	if m == nil || bus == nil {
		return
	}
	bus.Subscribe("auth.expired", events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.AuthExpired)
		if !ok {
			return nil
		}
		return m.authExpired(ctx, e)
	}))
}

func (m *Mailer) authExpired(ctx context.Context, e events.AuthExpired) error {
	subject := fmt.Sprintf("[leadpilot] %s credentials expired", e.Service)
	body := fmt.Sprintf(
		"The %s credentials were rejected at %s.\n\nReason: %s\n\nLead processing is paused for this service until the credentials are refreshed.\n",
		e.Service, e.OccurredAt().Format(time.RFC1123), e.Reason,
	)
	return m.send(ctx, subject, body)
}

func (m *Mailer) send(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	last, seen := m.lastSent[subject]
	if seen && time.Since(last) < m.cooldown {
		m.mu.Unlock()
		m.log.Debug("alert suppressed by cooldown", "subject", subject)
		return nil
	}
	m.lastSent[subject] = time.Now()
	m.mu.Unlock()

	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.GetAlertFromAddress()); err != nil {
		return fmt.Errorf("alert from: %w", err)
	}
	if err := msg.To(m.cfg.GetAlertToAddress()); err != nil {
		return fmt.Errorf("alert to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(m.cfg.GetSMTPHost(),
		gomail.WithPort(m.cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.GetSMTPUsername()),
		gomail.WithPassword(m.cfg.GetSMTPPassword()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("alert client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("alert send: %w", err)
	}

	m.log.Info("operator alert sent", "subject", subject)
	return nil
}
