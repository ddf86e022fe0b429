// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// CycleIDKey is the context key for the automation cycle ID
	CycleIDKey contextKey = "cycle_id"
	// LeadIDKey is the context key for the lead being processed
	LeadIDKey contextKey = "lead_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports cycle_id and lead_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok && cycleID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("cycle_id", cycleID))}
	}

	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		newLogger = newLogger.WithLeadID(leadID)
	}

	return newLogger
}

// WithLeadID returns a logger with the lead ID attached.
func (l *Logger) WithLeadID(leadID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("lead_id", leadID)),
	}
}

// LeadFailure logs a per-lead processing failure with its classified kind.
func (l *Logger) LeadFailure(leadID, stage, kind string, err error) {
	l.Error("lead_failure",
		slog.String("lead_id", leadID),
		slog.String("stage", stage),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// ExternalCall logs the outcome of an external API call.
func (l *Logger) ExternalCall(service, operation string, latencyMs float64, err error) {
	if err == nil {
		l.Debug("external_call",
			slog.String("service", service),
			slog.String("operation", operation),
			slog.Float64("latency_ms", latencyMs),
		)
		return
	}
	l.Warn("external_call_failed",
		slog.String("service", service),
		slog.String("operation", operation),
		slog.Float64("latency_ms", latencyMs),
		slog.String("error", err.Error()),
	)
}

// CycleSummary logs the result of one automation cycle.
func (l *Logger) CycleSummary(fetched, sent, skipped, failed int) {
	l.Info("cycle_completed",
		slog.Int("fetched", fetched),
		slog.Int("sent", sent),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
	)
}

// AuthEvent logs authentication events against external services.
func (l *Logger) AuthEvent(service string, success bool, reason string) {
	if success {
		l.Info("auth_event",
			slog.String("service", service),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("auth_event",
			slog.String("service", service),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
