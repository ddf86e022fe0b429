// Package openai provides a minimal client for OpenAI-compatible
// chat-completion APIs. This is part of the platform layer and contains no
// business logic.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadpilot_backend/platform/apperr"
)

// Config for the chat-completion client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	config Config
	client *http.Client
}

// New creates a chat-completion client with sane defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the system and user messages and returns the first choice's
// content. Failures are classified into apperr kinds so callers can decide
// retryability without inspecting transport details.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	payload := chatRequest{
		Model: c.config.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Internal("marshal chat request", err).WithOp("openai.Complete")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperr.Internal("build chat request", err).WithOp("openai.Complete")
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.Transient("chat completion request failed", err).WithOp("openai.Complete")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.Transient("read chat completion response", err).WithOp("openai.Complete")
	}

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.Transient("decode chat completion response", err).WithOp("openai.Complete")
	}
	if parsed.Error != nil {
		return "", apperr.Permanent("chat completion error: "+parsed.Error.Message, nil).WithOp("openai.Complete")
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.Transient("chat completion returned no choices", nil).WithOp("openai.Complete")
	}

	return parsed.Choices[0].Message.Content, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return apperr.RateLimited("chat completion rate limited", nil).WithOp("openai.Complete")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.AuthExpired("chat completion auth rejected", nil).WithOp("openai.Complete")
	case status >= 500:
		return apperr.Transient(fmt.Sprintf("chat completion upstream error %d", status), nil).WithOp("openai.Complete")
	default:
		return apperr.Permanent(fmt.Sprintf("chat completion rejected %d: %s", status, truncate(body, 200)), nil).WithOp("openai.Complete")
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
