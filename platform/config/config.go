// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// EngineConfig provides settings for the automation cycle.
type EngineConfig interface {
	GetCheckInterval() time.Duration
	GetExternalCallTimeout() time.Duration
	GetOnScheduleFailure() string
}

// BusinessConfig provides the business identity used in generated replies.
type BusinessConfig interface {
	GetBusinessName() string
	GetServiceType() string
	GetBasePrice() float64
	GetPriceRangeMin() float64
	GetPriceRangeMax() float64
	GetTimezone() string
}

// MarketplaceConfig provides settings for the lead marketplace client.
type MarketplaceConfig interface {
	GetMarketplaceBaseURL() string
	GetMarketplaceAPIKey() string
	GetMarketplaceRateLimit() float64
	GetLeadsFile() string
	GetMessagesFile() string
	IsMarketplaceLive() bool
}

// OpenAIConfig provides settings for the language-model client.
type OpenAIConfig interface {
	GetOpenAIAPIKey() string
	GetOpenAIBaseURL() string
	GetOpenAIModel() string
}

// CalendarConfig provides settings for the Google Calendar client.
type CalendarConfig interface {
	GetCalendarID() string
	GetCalendarTokenFile() string
	GetCalendarCredentialsFile() string
	IsCalendarEnabled() bool
}

// SchedulerConfig provides settings for the follow-up task scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetFollowUpDelay() time.Duration
	IsSchedulerEnabled() bool
}

// AlertConfig provides settings for operator alert emails.
type AlertConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertToAddress() string
	IsAlertEnabled() bool
}

// HTTPConfig provides settings for the status HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSOrigins() []string
}

// ResponderConfig provides settings for reply generation.
type ResponderConfig interface {
	BusinessConfig
	GetTemplatesFile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Accepted values for ON_SCHEDULE_FAILURE.
const (
	ScheduleFailureSendWithoutBooking = "send_without_booking"
	ScheduleFailureFailLead           = "fail_lead"
)

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	CheckInterval       time.Duration
	ExternalCallTimeout time.Duration
	OnScheduleFailure   string
	CORSOrigins         []string

	BusinessName  string
	ServiceType   string
	BasePrice     float64
	PriceRangeMin float64
	PriceRangeMax float64
	Timezone      string

	MarketplaceBaseURL   string
	MarketplaceAPIKey    string
	MarketplaceRateLimit float64
	LeadsFile            string
	MessagesFile         string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	CalendarID              string
	CalendarTokenFile       string
	CalendarCredentialsFile string
	CalendarEnabled         bool

	RedisURL         string
	AsynqQueueName   string
	AsynqConcurrency int
	FollowUpDelay    time.Duration

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	AlertFromAddress string
	AlertToAddress   string

	TemplatesFile string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// EngineConfig implementation
func (c *Config) GetCheckInterval() time.Duration       { return c.CheckInterval }
func (c *Config) GetExternalCallTimeout() time.Duration { return c.ExternalCallTimeout }
func (c *Config) GetOnScheduleFailure() string          { return c.OnScheduleFailure }

// BusinessConfig implementation
func (c *Config) GetBusinessName() string   { return c.BusinessName }
func (c *Config) GetServiceType() string    { return c.ServiceType }
func (c *Config) GetBasePrice() float64     { return c.BasePrice }
func (c *Config) GetPriceRangeMin() float64 { return c.PriceRangeMin }
func (c *Config) GetPriceRangeMax() float64 { return c.PriceRangeMax }
func (c *Config) GetTimezone() string       { return c.Timezone }

// MarketplaceConfig implementation
func (c *Config) GetMarketplaceBaseURL() string    { return c.MarketplaceBaseURL }
func (c *Config) GetMarketplaceAPIKey() string     { return c.MarketplaceAPIKey }
func (c *Config) GetMarketplaceRateLimit() float64 { return c.MarketplaceRateLimit }
func (c *Config) GetLeadsFile() string             { return c.LeadsFile }
func (c *Config) GetMessagesFile() string          { return c.MessagesFile }
func (c *Config) IsMarketplaceLive() bool {
	return c.MarketplaceBaseURL != "" && c.MarketplaceAPIKey != ""
}

// OpenAIConfig implementation
func (c *Config) GetOpenAIAPIKey() string  { return c.OpenAIAPIKey }
func (c *Config) GetOpenAIBaseURL() string { return c.OpenAIBaseURL }
func (c *Config) GetOpenAIModel() string   { return c.OpenAIModel }

// CalendarConfig implementation
func (c *Config) GetCalendarID() string              { return c.CalendarID }
func (c *Config) GetCalendarTokenFile() string       { return c.CalendarTokenFile }
func (c *Config) GetCalendarCredentialsFile() string { return c.CalendarCredentialsFile }
func (c *Config) IsCalendarEnabled() bool            { return c.CalendarEnabled }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetFollowUpDelay() time.Duration { return c.FollowUpDelay }
func (c *Config) IsSchedulerEnabled() bool        { return c.RedisURL != "" }

// AlertConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetAlertFromAddress() string { return c.AlertFromAddress }
func (c *Config) GetAlertToAddress() string   { return c.AlertToAddress }
func (c *Config) IsAlertEnabled() bool {
	return c.SMTPHost != "" && c.AlertToAddress != ""
}

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// ResponderConfig implementation
func (c *Config) GetTemplatesFile() string { return c.TemplatesFile }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	onScheduleFailure := strings.ToLower(getEnv("ON_SCHEDULE_FAILURE", ScheduleFailureSendWithoutBooking))

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		CheckInterval:       mustDuration(getEnv("CHECK_INTERVAL", "5m")),
		ExternalCallTimeout: mustDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "30s")),
		OnScheduleFailure:   onScheduleFailure,
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),

		BusinessName:  getEnv("BUSINESS_NAME", "Your Business"),
		ServiceType:   getEnv("SERVICE_TYPE", "Photography"),
		BasePrice:     mustFloat(getEnv("BASE_PRICE", "150")),
		PriceRangeMin: mustFloat(getEnv("PRICE_RANGE_MIN", "100")),
		PriceRangeMax: mustFloat(getEnv("PRICE_RANGE_MAX", "500")),
		Timezone:      getEnv("TIMEZONE", "America/New_York"),

		MarketplaceBaseURL:   getEnv("MARKETPLACE_BASE_URL", ""),
		MarketplaceAPIKey:    getEnv("MARKETPLACE_API_KEY", ""),
		MarketplaceRateLimit: mustFloat(getEnv("MARKETPLACE_RATE_LIMIT", "2")),
		LeadsFile:            getEnv("MOCK_LEADS_FILE", "mock_leads.json"),
		MessagesFile:         getEnv("MOCK_MESSAGES_FILE", "mock_messages.json"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4"),

		CalendarID:              getEnv("GOOGLE_CALENDAR_ID", "primary"),
		CalendarTokenFile:       getEnv("GOOGLE_CALENDAR_TOKEN_FILE", "token.json"),
		CalendarCredentialsFile: getEnv("GOOGLE_CALENDAR_CREDENTIALS_FILE", "credentials.json"),
		CalendarEnabled:         strings.EqualFold(getEnv("CALENDAR_ENABLED", "true"), "true"),

		RedisURL:         getEnv("REDIS_URL", ""),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "leadpilot"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		FollowUpDelay:    mustDuration(getEnv("FOLLOWUP_DELAY", "48h")),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		AlertFromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
		AlertToAddress:   getEnv("ALERT_TO_ADDRESS", ""),

		TemplatesFile: getEnv("TEMPLATES_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("CHECK_INTERVAL must be a positive duration")
	}
	if onScheduleFailure != ScheduleFailureSendWithoutBooking && onScheduleFailure != ScheduleFailureFailLead {
		return nil, fmt.Errorf("ON_SCHEDULE_FAILURE must be %q or %q",
			ScheduleFailureSendWithoutBooking, ScheduleFailureFailLead)
	}
	if cfg.PriceRangeMin > cfg.PriceRangeMax {
		return nil, fmt.Errorf("PRICE_RANGE_MIN cannot exceed PRICE_RANGE_MAX")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
