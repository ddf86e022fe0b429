package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
)

func newTestCalendar(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{
		calendarID: "primary",
		baseURL:    srv.URL,
		httpClient: srv.Client(),
		timezone:   "UTC",
		log:        logger.New("test"),
	}
}

func TestCreateBookingReturnsEventID(t *testing.T) {
	var gotBody map[string]any
	client := newTestCalendar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calendars/primary/events" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "evt-42"})
	}))

	start := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	id, err := client.CreateBooking(context.Background(), Booking{
		LeadID:    "lead-1",
		Title:     "Plumbing - John Smith",
		Start:     start,
		End:       start.Add(2 * time.Hour),
		Attendees: []string{"john@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if id != "evt-42" {
		t.Fatalf("expected evt-42, got %q", id)
	}
	if gotBody["summary"] != "Plumbing - John Smith" {
		t.Fatalf("unexpected summary %v", gotBody["summary"])
	}
	if _, ok := gotBody["attendees"]; !ok {
		t.Fatalf("expected attendees in event body")
	}
}

func TestCreateBookingErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusUnauthorized, apperr.KindAuthExpired},
		{http.StatusConflict, apperr.KindConflict},
		{http.StatusTooManyRequests, apperr.KindRateLimited},
		{http.StatusInternalServerError, apperr.KindTransient},
		{http.StatusBadRequest, apperr.KindPermanent},
	}

	for _, tc := range cases {
		client := newTestCalendar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := client.CreateBooking(context.Background(), Booking{LeadID: "lead-1"})
		if !apperr.Is(err, tc.kind) {
			t.Fatalf("status %d: expected kind %v, got %v", tc.status, tc.kind, err)
		}
	}
}

func TestCreateBookingMissingIDIsTransient(t *testing.T) {
	client := newTestCalendar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	_, err := client.CreateBooking(context.Background(), Booking{LeadID: "lead-1"})
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestSuggestSlotsSkipsBusyWindows(t *testing.T) {
	day := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	client := newTestCalendar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"start": map[string]string{"dateTime": "2026-03-06T09:00:00Z"},
					"end":   map[string]string{"dateTime": "2026-03-06T11:00:00Z"},
				},
			},
		})
	}))

	slots, err := client.SuggestSlots(context.Background(), day, 2*time.Hour, 3)
	if err != nil {
		t.Fatalf("SuggestSlots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if slots[0].Hour() != 11 {
		t.Fatalf("expected first free slot at 11:00, got %s", slots[0])
	}
	for _, slot := range slots {
		if slot.Hour() < 9 || slot.Add(2*time.Hour).Hour() > 17 {
			t.Fatalf("slot outside business hours: %s", slot)
		}
	}
}

func TestCheckAvailabilityDetectsOverlap(t *testing.T) {
	client := newTestCalendar(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"start": map[string]string{"dateTime": "2026-03-06T10:00:00Z"},
					"end":   map[string]string{"dateTime": "2026-03-06T12:00:00Z"},
				},
			},
		})
	}))

	free, err := client.CheckAvailability(context.Background(),
		time.Date(2026, 3, 6, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 6, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if free {
		t.Fatalf("expected overlap to report unavailable")
	}
}

func TestNewClientMissingCredentialsIsAuthExpired(t *testing.T) {
	dir := t.TempDir()
	cfg := testCalendarConfig{
		credentials: filepath.Join(dir, "missing-credentials.json"),
		token:       filepath.Join(dir, "missing-token.json"),
	}

	_, err := NewClient(context.Background(), cfg, "UTC", 5*time.Second, logger.New("test"))
	if !apperr.Is(err, apperr.KindAuthExpired) {
		t.Fatalf("expected auth-expired error, got %v", err)
	}
}

func TestNewClientMalformedTokenIsAuthExpired(t *testing.T) {
	dir := t.TempDir()
	credsPath := filepath.Join(dir, "credentials.json")
	tokenPath := filepath.Join(dir, "token.json")

	creds := `{"installed":{"client_id":"abc","client_secret":"shh","token_uri":"https://example.com/token"}}`
	if err := os.WriteFile(credsPath, []byte(creds), 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	if err := os.WriteFile(tokenPath, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}

	cfg := testCalendarConfig{credentials: credsPath, token: tokenPath}
	_, err := NewClient(context.Background(), cfg, "UTC", 5*time.Second, logger.New("test"))
	if !apperr.Is(err, apperr.KindAuthExpired) {
		t.Fatalf("expected auth-expired error for empty token, got %v", err)
	}
}

type testCalendarConfig struct {
	credentials string
	token       string
}

func (c testCalendarConfig) GetCalendarID() string              { return "primary" }
func (c testCalendarConfig) GetCalendarTokenFile() string       { return c.token }
func (c testCalendarConfig) GetCalendarCredentialsFile() string { return c.credentials }
func (c testCalendarConfig) IsCalendarEnabled() bool            { return true }
