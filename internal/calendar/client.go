// Package calendar provides the Google Calendar client used to book
// appointments for leads. OAuth token refresh is out-of-band: this client
// reads locally stored credential material and surfaces AuthExpired when the
// token is no longer usable.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

const (
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"
	calendarScope  = "https://www.googleapis.com/auth/calendar"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	defaultBusinessStartHour = 9
	defaultBusinessEndHour   = 17
)

// Booking describes one calendar event to create for a lead.
type Booking struct {
	LeadID      string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Location    string
	Attendees   []string
}

// Client calls the Google Calendar REST API.
type Client struct {
	calendarID string
	baseURL    string
	httpClient *http.Client
	timezone   string
	log        *logger.Logger
}

// NewClient builds a calendar client from the locally stored OAuth
// credentials and token files. Returns an AuthExpired error when credential
// material is missing so startup can surface it to the operator.
func NewClient(ctx context.Context, cfg config.CalendarConfig, timezone string, timeout time.Duration, log *logger.Logger) (*Client, error) {
	oauthCfg, err := loadOAuthConfig(cfg.GetCalendarCredentialsFile())
	if err != nil {
		return nil, err
	}

	token, err := loadToken(cfg.GetCalendarTokenFile())
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, oauthCfg.TokenSource(ctx, token))
	httpClient.Timeout = timeout

	return &Client{
		calendarID: cfg.GetCalendarID(),
		baseURL:    defaultBaseURL,
		httpClient: httpClient,
		timezone:   timezone,
		log:        log,
	}, nil
}

// CreateBooking inserts the event and returns its id. The caller is expected
// to consult the dedup store's booking ref first; this call itself is not
// idempotent.
func (c *Client) CreateBooking(ctx context.Context, booking Booking) (string, error) {
	attendees := make([]map[string]string, 0, len(booking.Attendees))
	for _, email := range booking.Attendees {
		attendees = append(attendees, map[string]string{"email": email})
	}

	body := map[string]any{
		"summary":     booking.Title,
		"description": booking.Description,
		"start": map[string]string{
			"dateTime": booking.Start.Format(time.RFC3339),
			"timeZone": c.timezone,
		},
		"end": map[string]string{
			"dateTime": booking.End.Format(time.RFC3339),
			"timeZone": c.timezone,
		},
		"reminders": map[string]any{
			"useDefault": false,
			"overrides": []map[string]any{
				{"method": "email", "minutes": 24 * 60},
				{"method": "popup", "minutes": 60},
			},
		},
	}
	if len(attendees) > 0 {
		body["attendees"] = attendees
	}
	if booking.Location != "" {
		body["location"] = booking.Location
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", apperr.Internal("marshal event body", err).WithOp("calendar.CreateBooking")
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", apperr.Internal("build event request", err).WithOp("calendar.CreateBooking")
	}
	req.Header.Set("Content-Type", "application/json")

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(req, "CreateBooking", &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", apperr.Transient("calendar returned event without id", nil).WithOp("calendar.CreateBooking")
	}

	c.log.Info("calendar event created", "lead_id", booking.LeadID, "event_id", created.ID, "start", booking.Start)
	return created.ID, nil
}

// CheckAvailability reports whether the window is free of existing events.
func (c *Client) CheckAvailability(ctx context.Context, start, end time.Time) (bool, error) {
	events, err := c.listEvents(ctx, start, end)
	if err != nil {
		return false, err
	}
	for _, evt := range events {
		if start.Before(evt.End) && end.After(evt.Start) {
			return false, nil
		}
	}
	return true, nil
}

// SuggestSlots returns up to limit free slots of the default booking length
// on the given day, stepping hourly through business hours.
func (c *Client) SuggestSlots(ctx context.Context, day time.Time, duration time.Duration, limit int) ([]time.Time, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), defaultBusinessStartHour, 0, 0, 0, day.Location())
	dayEnd := time.Date(day.Year(), day.Month(), day.Day(), defaultBusinessEndHour, 0, 0, 0, day.Location())

	events, err := c.listEvents(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	var slots []time.Time
	for cursor := dayStart; !cursor.Add(duration).After(dayEnd) && len(slots) < limit; cursor = cursor.Add(time.Hour) {
		slotEnd := cursor.Add(duration)
		free := true
		for _, evt := range events {
			if cursor.Before(evt.End) && slotEnd.After(evt.Start) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, cursor)
		}
	}
	return slots, nil
}

type eventWindow struct {
	Start time.Time
	End   time.Time
}

func (c *Client) listEvents(ctx context.Context, from, to time.Time) ([]eventWindow, error) {
	params := url.Values{}
	params.Set("timeMin", from.UTC().Format(time.RFC3339))
	params.Set("timeMax", to.UTC().Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", c.baseURL, url.PathEscape(c.calendarID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Internal("build list request", err).WithOp("calendar.listEvents")
	}

	var payload struct {
		Items []struct {
			Start struct {
				DateTime string `json:"dateTime"`
				Date     string `json:"date"`
			} `json:"start"`
			End struct {
				DateTime string `json:"dateTime"`
				Date     string `json:"date"`
			} `json:"end"`
		} `json:"items"`
	}
	if err := c.do(req, "listEvents", &payload); err != nil {
		return nil, err
	}

	windows := make([]eventWindow, 0, len(payload.Items))
	for _, item := range payload.Items {
		start, ok1 := parseEventTime(item.Start.DateTime, item.Start.Date)
		end, ok2 := parseEventTime(item.End.DateTime, item.End.Date)
		if ok1 && ok2 {
			windows = append(windows, eventWindow{Start: start, End: end})
		}
	}
	return windows, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := float64(time.Since(started).Milliseconds())
	if err != nil {
		c.log.ExternalCall("calendar", op, latency, err)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return apperr.AuthExpired("calendar token refresh rejected", err).WithOp("calendar." + op)
		}
		return apperr.Transient("calendar request failed", err).WithOp("calendar." + op)
	}
	defer resp.Body.Close()
	c.log.ExternalCall("calendar", op, latency, nil)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.AuthExpired("calendar auth rejected", nil).WithOp("calendar." + op)
	case resp.StatusCode == http.StatusConflict:
		return apperr.Conflict("calendar slot conflict", nil).WithOp("calendar." + op)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.RateLimited("calendar rate limited", nil).WithOp("calendar." + op)
	case resp.StatusCode >= 500:
		return apperr.Transient(fmt.Sprintf("calendar upstream error %d", resp.StatusCode), nil).WithOp("calendar." + op)
	case resp.StatusCode >= 400:
		return apperr.Permanent(fmt.Sprintf("calendar rejected request %d", resp.StatusCode), nil).WithOp("calendar." + op)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Transient("decode calendar response", err).WithOp("calendar." + op)
	}
	return nil
}

func parseEventTime(dateTime, date string) (time.Time, bool) {
	if dateTime != "" {
		t, err := time.Parse(time.RFC3339, dateTime)
		return t, err == nil
	}
	if date != "" {
		t, err := time.Parse("2006-01-02", date)
		return t, err == nil
	}
	return time.Time{}, false
}

func loadOAuthConfig(path string) (*oauth2.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.AuthExpired("calendar credentials file unreadable: "+path, err)
	}

	var file struct {
		Installed *struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			TokenURI     string `json:"token_uri"`
		} `json:"installed"`
		Web *struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
			TokenURI     string `json:"token_uri"`
		} `json:"web"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, apperr.AuthExpired("calendar credentials file malformed", err)
	}

	creds := file.Installed
	if creds == nil {
		creds = file.Web
	}
	if creds == nil || creds.ClientID == "" {
		return nil, apperr.AuthExpired("calendar credentials file missing client", nil)
	}

	tokenURL := creds.TokenURI
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       []string{calendarScope},
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.AuthExpired("calendar token file unreadable: "+path, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, apperr.AuthExpired("calendar token file malformed", err)
	}
	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, apperr.AuthExpired("calendar token file empty", nil)
	}
	return &token, nil
}
