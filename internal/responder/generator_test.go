package responder

import (
	"context"
	"strings"
	"testing"
	"time"

	"leadpilot_backend/internal/marketplace"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/clock"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func responderConfig() *config.Config {
	return &config.Config{
		BusinessName:  "Apex Plumbing",
		ServiceType:   "Plumbing",
		BasePrice:     150,
		PriceRangeMin: 100,
		PriceRangeMax: 500,
		Timezone:      "UTC",
	}
}

func newGenerator(t *testing.T, llm ChatCompleter) *Generator {
	t.Helper()
	gen, err := New(llm, responderConfig(), clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)), logger.New("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gen
}

func TestGenerateUsesModelResponseAndExtractsIntent(t *testing.T) {
	llm := &fakeLLM{reply: `{"sentiment":"positive","intent":"scheduling","urgency":"high","suggested_response":"See you then!","confidence_score":0.9}`}
	gen := newGenerator(t, llm)

	resp, err := gen.Generate(context.Background(), marketplace.Lead{
		ID:           "lead-1",
		CustomerName: "John",
		Description:  "Need someone tomorrow at 3pm",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "See you then!" {
		t.Fatalf("expected model text, got %q", resp.Text)
	}
	if resp.Intent == nil {
		t.Fatalf("expected scheduling intent extracted from description")
	}
	want := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	if !resp.Intent.Start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, resp.Intent.Start)
	}
}

func TestGenerateFallsBackToPreferredDateForSchedulingIntent(t *testing.T) {
	llm := &fakeLLM{reply: `{"intent":"scheduling","suggested_response":"Happy to schedule."}`}
	gen := newGenerator(t, llm)

	preferred := time.Now().UTC().AddDate(0, 0, 3).Truncate(time.Hour)
	resp, err := gen.Generate(context.Background(), marketplace.Lead{
		ID:            "lead-2",
		CustomerName:  "Jane",
		Description:   "Looking to get my bathroom done soon",
		PreferredDate: &preferred,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Intent == nil {
		t.Fatalf("expected intent from preferred date")
	}
	if !resp.Intent.Start.Equal(preferred) {
		t.Fatalf("expected start %s, got %s", preferred, resp.Intent.Start)
	}
}

func TestGeneratePropagatesModelErrors(t *testing.T) {
	llm := &fakeLLM{err: apperr.RateLimited("model rate limited", nil)}
	gen := newGenerator(t, llm)

	_, err := gen.Generate(context.Background(), marketplace.Lead{ID: "lead-3", Description: "help"})
	if !apperr.Is(err, apperr.KindRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestAnalyzeLeadMalformedReplyFallsBackToDefaults(t *testing.T) {
	llm := &fakeLLM{reply: "Sorry, I can't produce JSON today."}
	gen := newGenerator(t, llm)

	analysis, err := gen.AnalyzeLead(context.Background(), marketplace.Lead{ID: "lead-4", Description: "quote please"})
	if err != nil {
		t.Fatalf("AnalyzeLead: %v", err)
	}
	if analysis.Intent != IntentQuoteRequest {
		t.Fatalf("expected default intent, got %q", analysis.Intent)
	}
	if analysis.SuggestedResponse == "" {
		t.Fatalf("expected a usable default response")
	}
}

func TestAnalyzeLeadStripsCodeFences(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"intent\":\"question\",\"suggested_response\":\"Sure thing.\"}\n```"}
	gen := newGenerator(t, llm)

	analysis, err := gen.AnalyzeLead(context.Background(), marketplace.Lead{ID: "lead-5", Description: "hi"})
	if err != nil {
		t.Fatalf("AnalyzeLead: %v", err)
	}
	if analysis.Intent != "question" || analysis.SuggestedResponse != "Sure thing." {
		t.Fatalf("expected fenced JSON parsed, got %+v", analysis)
	}
}

func TestClampPriceBoundsToBudget(t *testing.T) {
	gen := newGenerator(t, &fakeLLM{})

	high := 900.0
	price := gen.ClampPrice(Analysis{SuggestedPrice: &high}, marketplace.Lead{BudgetMin: 100, BudgetMax: 300})
	if price != 300 {
		t.Fatalf("expected clamp to budget max, got %v", price)
	}

	low := 50.0
	price = gen.ClampPrice(Analysis{SuggestedPrice: &low}, marketplace.Lead{BudgetMin: 100, BudgetMax: 300})
	if price != 100 {
		t.Fatalf("expected clamp to budget min, got %v", price)
	}

	price = gen.ClampPrice(Analysis{}, marketplace.Lead{})
	if price != 150 {
		t.Fatalf("expected base price fallback, got %v", price)
	}
}

func TestQuoteReplyFallsBackToTemplateOnModelError(t *testing.T) {
	llm := &fakeLLM{err: apperr.Transient("model down", nil)}
	gen := newGenerator(t, llm)

	out := gen.QuoteReply(context.Background(), marketplace.Lead{ID: "lead-6", CustomerName: "Sam"}, 250, Analysis{})
	if !strings.Contains(out, "$250.00") {
		t.Fatalf("expected templated quote with price, got %q", out)
	}
}

func TestAnalyzeMessageDefaultsToQuestionIntent(t *testing.T) {
	llm := &fakeLLM{reply: "no json here"}
	gen := newGenerator(t, llm)

	analysis, err := gen.AnalyzeMessage(context.Background(), marketplace.Message{ID: "m1", LeadID: "lead-7", Content: "hello?"}, nil)
	if err != nil {
		t.Fatalf("AnalyzeMessage: %v", err)
	}
	if analysis.Intent != IntentQuestion {
		t.Fatalf("expected question default, got %q", analysis.Intent)
	}
}
