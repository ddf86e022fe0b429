// Package marketplace provides clients for the upstream lead marketplace:
// a live HTTP client and a file-backed feed for local runs.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
	"leadpilot_backend/platform/phone"
	"leadpilot_backend/platform/validator"
)

// Client is the capability surface the engine needs from the marketplace.
// sendMessage is externally visible and non-idempotent at the transport
// layer; the engine guards it with the dedup store.
type Client interface {
	FetchNewLeads(ctx context.Context) ([]Lead, error)
	FetchNewMessages(ctx context.Context) ([]Message, error)
	SendMessage(ctx context.Context, leadID, text string) error
	UpdateLeadStatus(ctx context.Context, leadID, status string) error
}

// HTTPClient talks to the marketplace REST API.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
	validate *validator.Validator
	log      *logger.Logger
}

// NewHTTPClient creates a rate-limited marketplace API client.
func NewHTTPClient(cfg config.MarketplaceConfig, timeout time.Duration, log *logger.Logger) *HTTPClient {
	rps := cfg.GetMarketplaceRateLimit()
	if rps <= 0 {
		rps = 2
	}
	return &HTTPClient{
		baseURL:  cfg.GetMarketplaceBaseURL(),
		apiKey:   cfg.GetMarketplaceAPIKey(),
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		validate: validator.New(),
		log:      log,
	}
}

// FetchNewLeads returns all leads the upstream currently exposes with status
// "new". Each call is a finite, restartable pull, not a cursor-advancing
// stream: the dedup store, not this client, decides what is actually new.
func (c *HTTPClient) FetchNewLeads(ctx context.Context) ([]Lead, error) {
	var payload struct {
		Leads []Lead `json:"leads"`
	}
	if err := c.getJSON(ctx, "/v1/leads?status=new", &payload); err != nil {
		return nil, err
	}

	leads := make([]Lead, 0, len(payload.Leads))
	for _, lead := range payload.Leads {
		if err := c.validate.Struct(lead); err != nil {
			c.log.Warn("dropping malformed lead payload", "lead_id", lead.ID, "error", err)
			continue
		}
		lead.CustomerPhone = phone.NormalizeE164(lead.CustomerPhone)
		leads = append(leads, lead)
	}
	return leads, nil
}

// FetchNewMessages returns unanswered customer messages across all leads.
func (c *HTTPClient) FetchNewMessages(ctx context.Context) ([]Message, error) {
	var payload struct {
		Messages []Message `json:"messages"`
	}
	if err := c.getJSON(ctx, "/v1/messages?unread=true", &payload); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(payload.Messages))
	for _, msg := range payload.Messages {
		if err := c.validate.Struct(msg); err != nil {
			c.log.Warn("dropping malformed message payload", "message_id", msg.ID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// SendMessage posts one reply to the lead's conversation. Not idempotent:
// callers must dedupe.
func (c *HTTPClient) SendMessage(ctx context.Context, leadID, text string) error {
	body := map[string]string{"content": text}
	return c.postJSON(ctx, "/v1/leads/"+leadID+"/messages", body)
}

// UpdateLeadStatus moves the lead to a new status upstream. Best-effort;
// already-set statuses are accepted by the API.
func (c *HTTPClient) UpdateLeadStatus(ctx context.Context, leadID, status string) error {
	body := map[string]string{"status": status}
	return c.postJSON(ctx, "/v1/leads/"+leadID+"/status", body)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apperr.Internal("marshal request body", err).WithOp("marketplace." + path)
	}
	return c.do(ctx, http.MethodPost, path, raw, nil)
}

// do performs one rate-limited, retried request. Only transient failures are
// retried here; rate limits and auth expiry propagate immediately so the
// cycle-level policy applies.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doOnce(ctx, method, path, body, out)
		if apperr.Is(err, apperr.KindTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperr.Internal("build request", err).WithOp("marketplace." + path)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	latency := float64(time.Since(started).Milliseconds())
	if err != nil {
		c.log.ExternalCall("marketplace", path, latency, err)
		return apperr.Transient("marketplace request failed", err).WithOp("marketplace." + path)
	}
	defer resp.Body.Close()
	c.log.ExternalCall("marketplace", path, latency, nil)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.AuthExpired("marketplace auth rejected", nil).WithOp("marketplace." + path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.RateLimited("marketplace rate limited", nil).WithOp("marketplace." + path)
	case resp.StatusCode >= 500:
		return apperr.Transient(fmt.Sprintf("marketplace upstream error %d", resp.StatusCode), nil).WithOp("marketplace." + path)
	case resp.StatusCode >= 400:
		return apperr.Permanent(fmt.Sprintf("marketplace rejected request %d", resp.StatusCode), nil).WithOp("marketplace." + path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Transient("decode marketplace response", err).WithOp("marketplace." + path)
	}
	return nil
}
