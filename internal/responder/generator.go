// Package responder turns a lead or message into an outbound reply using a
// language-model call plus best-effort scheduling-intent extraction.
package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leadpilot_backend/internal/marketplace"
	"leadpilot_backend/platform/clock"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

// Recognized analysis intents.
const (
	IntentQuoteRequest = "quote_request"
	IntentScheduling   = "scheduling"
	IntentQuestion     = "question"
	IntentComplaint    = "complaint"
	IntentBooking      = "booking"
	IntentOther        = "other"
)

// Analysis is the structured result of a language-model pass over a lead or
// message.
type Analysis struct {
	Sentiment         string   `json:"sentiment"`
	Intent            string   `json:"intent"`
	Urgency           string   `json:"urgency"`
	SuggestedPrice    *float64 `json:"suggested_price"`
	KeyRequirements   []string `json:"key_requirements"`
	SuggestedResponse string   `json:"suggested_response"`
	ConfidenceScore   float64  `json:"confidence_score"`
}

// GeneratedResponse is the transient output of one generation pass. It
// references the lead but does not own it; it is never persisted on its own.
type GeneratedResponse struct {
	LeadID   string
	Text     string
	Intent   *SchedulingIntent
	Analysis Analysis
}

// ChatCompleter is the capability the generator needs from the language
// model. Swappable for a stub in tests.
type ChatCompleter interface {
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Generator builds prompts, runs the model, and assembles replies.
type Generator struct {
	llm       ChatCompleter
	cfg       config.ResponderConfig
	templates Templates
	clk       clock.Clock
	log       *logger.Logger
}

// New creates a Generator. Template overrides are loaded from the configured
// YAML file when present. A nil clock falls back to the wall clock.
func New(llm ChatCompleter, cfg config.ResponderConfig, clk clock.Clock, log *logger.Logger) (*Generator, error) {
	templates, err := LoadTemplates(cfg.GetTemplatesFile())
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Generator{
		llm:       llm,
		cfg:       cfg,
		templates: templates,
		clk:       clk,
		log:       log,
	}, nil
}

// Generate produces the reply for a new lead: analyze, route by intent, and
// extract any scheduling intent from the lead text. Model-call failures
// propagate typed; only a malformed model reply falls back to the default
// analysis.
func (g *Generator) Generate(ctx context.Context, lead marketplace.Lead) (GeneratedResponse, error) {
	analysis, err := g.AnalyzeLead(ctx, lead)
	if err != nil {
		return GeneratedResponse{}, err
	}

	loc := g.location()
	intent := ExtractIntent(lead.Description, g.clk.Now().In(loc))
	if intent == nil && analysis.Intent == IntentScheduling && lead.PreferredDate != nil {
		start := lead.PreferredDate.In(loc)
		intent = &SchedulingIntent{Start: start, End: start.Add(DefaultBookingDuration)}
	}

	text := g.buildReply(lead, analysis)

	return GeneratedResponse{
		LeadID:   lead.ID,
		Text:     text,
		Intent:   intent,
		Analysis: analysis,
	}, nil
}

// AnalyzeLead runs the structured-analysis prompt over a lead.
func (g *Generator) AnalyzeLead(ctx context.Context, lead marketplace.Lead) (Analysis, error) {
	system := fmt.Sprintf(
		"You are an expert business assistant for %s, specializing in %s. Your job is to analyze customer leads and provide structured responses in JSON format.",
		g.cfg.GetBusinessName(), g.cfg.GetServiceType())

	raw, err := g.llm.Complete(ctx, system, g.leadAnalysisPrompt(lead), 0.3)
	if err != nil {
		return Analysis{}, err
	}

	return g.parseAnalysis(raw, IntentQuoteRequest), nil
}

// AnalyzeMessage runs the structured-analysis prompt over a conversation
// message, with lead context when available.
func (g *Generator) AnalyzeMessage(ctx context.Context, msg marketplace.Message, lead *marketplace.Lead) (Analysis, error) {
	system := fmt.Sprintf(
		"You are an expert business assistant for %s, specializing in %s. Analyze customer messages and provide structured responses in JSON format.",
		g.cfg.GetBusinessName(), g.cfg.GetServiceType())

	raw, err := g.llm.Complete(ctx, system, g.messageAnalysisPrompt(msg, lead), 0.3)
	if err != nil {
		return Analysis{}, err
	}

	return g.parseAnalysis(raw, IntentQuestion), nil
}

// ClampPrice bounds the suggested price to the lead's budget range, falling
// back to the configured base price when the model offered none.
func (g *Generator) ClampPrice(analysis Analysis, lead marketplace.Lead) float64 {
	price := g.cfg.GetBasePrice()
	if analysis.SuggestedPrice != nil && *analysis.SuggestedPrice > 0 {
		price = *analysis.SuggestedPrice
	}

	if lead.HasBudget() {
		if price > lead.BudgetMax {
			price = lead.BudgetMax
		} else if price < lead.BudgetMin {
			price = lead.BudgetMin
		}
	}
	return price
}

// QuoteReply asks the model for a personalized quote message; on failure it
// falls back to the quote template so a priced reply always exists.
func (g *Generator) QuoteReply(ctx context.Context, lead marketplace.Lead, price float64, analysis Analysis) string {
	system := fmt.Sprintf("You are a professional %s business owner writing quotes to potential customers.",
		strings.ToLower(g.cfg.GetServiceType()))

	prompt := fmt.Sprintf(`Generate a professional quote response for a %s business.

Customer: %s
Service requested: %s
Suggested price: $%.2f
Key requirements: %s
Business name: %s

The response should be professional and friendly, include the price clearly,
address specific customer requirements, include next steps, and be concise
but complete.`,
		strings.ToLower(g.cfg.GetServiceType()), lead.CustomerName, lead.Description,
		price, strings.Join(analysis.KeyRequirements, ", "), g.cfg.GetBusinessName())

	text, err := g.llm.Complete(ctx, system, prompt, 0.7)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			g.log.Warn("quote generation failed, using template", "lead_id", lead.ID, "error", err)
		}
		return g.templates.RenderQuote(g.cfg, price)
	}
	return text
}

// Templates returns the active reply templates.
func (g *Generator) Templates() Templates {
	return g.templates
}

func (g *Generator) buildReply(lead marketplace.Lead, analysis Analysis) string {
	if strings.TrimSpace(analysis.SuggestedResponse) != "" {
		return strings.TrimSpace(analysis.SuggestedResponse)
	}
	return g.templates.RenderGeneral(g.cfg)
}

func (g *Generator) leadAnalysisPrompt(lead marketplace.Lead) string {
	budget := "Not specified"
	if lead.HasBudget() {
		budget = fmt.Sprintf("$%.2f - $%.2f", lead.BudgetMin, lead.BudgetMax)
	}
	preferred := "Not specified"
	if lead.PreferredDate != nil {
		preferred = lead.PreferredDate.Format(time.RFC3339)
	}
	location := lead.Location
	if location == "" {
		location = "Not specified"
	}

	return fmt.Sprintf(`Analyze this customer lead and provide a JSON response with the following structure:
{
  "sentiment": "positive|neutral|negative",
  "intent": "quote_request|scheduling|question|complaint|other",
  "urgency": "high|medium|low",
  "suggested_price": float_or_null,
  "key_requirements": ["requirement1", "requirement2"],
  "suggested_response": "Professional response text",
  "confidence_score": float_between_0_and_1
}

Customer Information:
- Name: %s
- Service Category: %s
- Description: %s
- Budget Range: %s
- Preferred Date: %s
- Location: %s

Business Context:
- Service Type: %s
- Base Price: $%.2f
- Price Range: $%.2f - $%.2f

Provide pricing suggestions within our range and craft a professional response.`,
		lead.CustomerName, lead.ServiceCategory, lead.Description, budget, preferred, location,
		g.cfg.GetServiceType(), g.cfg.GetBasePrice(), g.cfg.GetPriceRangeMin(), g.cfg.GetPriceRangeMax())
}

func (g *Generator) messageAnalysisPrompt(msg marketplace.Message, lead *marketplace.Lead) string {
	leadContext := ""
	if lead != nil {
		leadContext = fmt.Sprintf(`
Lead Context:
- Customer: %s
- Service: %s
- Original Request: %s
- Status: %s
`, lead.CustomerName, lead.ServiceCategory, lead.Description, lead.Status)
	}

	return fmt.Sprintf(`Analyze this customer message and provide a JSON response with the following structure:
{
  "sentiment": "positive|neutral|negative",
  "intent": "quote_request|scheduling|question|complaint|booking|other",
  "urgency": "high|medium|low",
  "suggested_price": float_or_null,
  "key_requirements": ["requirement1", "requirement2"],
  "suggested_response": "Professional response text",
  "confidence_score": float_between_0_and_1
}

Message Details:
- Sender: %s
- Content: %s
%s
Business Context:
- Service Type: %s
- Business Name: %s

Craft an appropriate professional response based on the message intent.`,
		msg.Sender, msg.Content, leadContext,
		g.cfg.GetServiceType(), g.cfg.GetBusinessName())
}

// parseAnalysis decodes the model's JSON reply. Models occasionally wrap the
// JSON in code fences or prose; a reply with no parseable JSON yields the
// default analysis rather than failing the lead.
func (g *Generator) parseAnalysis(raw, defaultIntent string) Analysis {
	payload := extractJSON(raw)

	var analysis Analysis
	if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
		g.log.Warn("unparseable model analysis, using defaults", "error", err)
		return g.defaultAnalysis(defaultIntent)
	}

	if analysis.Sentiment == "" {
		analysis.Sentiment = "neutral"
	}
	if analysis.Intent == "" {
		analysis.Intent = defaultIntent
	}
	if analysis.Urgency == "" {
		analysis.Urgency = "medium"
	}
	if analysis.ConfidenceScore == 0 {
		analysis.ConfidenceScore = 0.8
	}
	return analysis
}

func (g *Generator) defaultAnalysis(intent string) Analysis {
	base := g.cfg.GetBasePrice()
	return Analysis{
		Sentiment:      "neutral",
		Intent:         intent,
		Urgency:        "medium",
		SuggestedPrice: &base,
		SuggestedResponse: fmt.Sprintf(
			"Thank you for your interest in our %s services. We'd be happy to help and will follow up with details shortly.",
			strings.ToLower(g.cfg.GetServiceType())),
		ConfidenceScore: 0.5,
	}
}

func (g *Generator) location() *time.Location {
	loc, err := time.LoadLocation(g.cfg.GetTimezone())
	if err != nil {
		return time.Local
	}
	return loc
}

// extractJSON pulls the first top-level JSON object out of a model reply.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
