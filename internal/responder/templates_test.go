package responder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"leadpilot_backend/platform/config"
)

func businessConfig() *config.Config {
	return &config.Config{
		BusinessName: "Apex Plumbing",
		ServiceType:  "Plumbing",
		BasePrice:    150,
	}
}

func TestLoadTemplatesMissingFileUsesDefaults(t *testing.T) {
	tmpl, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if tmpl.Quote == "" || tmpl.FollowUp == "" {
		t.Fatalf("expected defaults, got %+v", tmpl)
	}
}

func TestLoadTemplatesMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := "follow_up: \"Checking in about your %s quote. - %s\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write templates: %v", err)
	}

	tmpl, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if !strings.HasPrefix(tmpl.FollowUp, "Checking in") {
		t.Fatalf("expected override applied, got %q", tmpl.FollowUp)
	}
	if tmpl.Quote != defaultTemplates().Quote {
		t.Fatalf("expected untouched fields to keep defaults")
	}
}

func TestLoadTemplatesMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte("follow_up: [unclosed"), 0o644); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	if _, err := LoadTemplates(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRenderQuoteIncludesPriceAndBusiness(t *testing.T) {
	out := defaultTemplates().RenderQuote(businessConfig(), 225.50)
	if !strings.Contains(out, "$225.50") {
		t.Fatalf("expected price in quote, got %q", out)
	}
	if !strings.Contains(out, "Apex Plumbing") {
		t.Fatalf("expected business name in quote, got %q", out)
	}
}

func TestRenderSchedulingOfferListsSlots(t *testing.T) {
	slots := []time.Time{
		time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC),
	}
	out := defaultTemplates().RenderSchedulingOffer(businessConfig(), slots)
	if !strings.Contains(out, "Friday, March 6 at 9:00 AM") {
		t.Fatalf("expected first slot listed, got %q", out)
	}
	if !strings.Contains(out, "Friday, March 6 at 2:00 PM") {
		t.Fatalf("expected second slot listed, got %q", out)
	}
}

func TestRenderSchedulingOfferWithoutSlotsUsesPendingText(t *testing.T) {
	out := defaultTemplates().RenderSchedulingOffer(businessConfig(), nil)
	if !strings.Contains(out, "checking my availability") {
		t.Fatalf("expected pending text, got %q", out)
	}
}

func TestRenderBookingConfirmationFormatsStart(t *testing.T) {
	start := time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC)
	out := defaultTemplates().RenderBookingConfirmation(businessConfig(), start)
	if !strings.Contains(out, "Friday, March 6 at 3:00 PM") {
		t.Fatalf("expected formatted start, got %q", out)
	}
}
