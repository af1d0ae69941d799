// Package vision is the boundary to the hosted generative model. It turns a
// food photo into a Donation verdict and scores a donation against an NGO
// request. Both calls are single-shot: no retries, no caching.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foodbridge/internal/config"
	"foodbridge/internal/logger"
)

// Part is one input block: either text or inline image bytes.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func TextPart(s string) Part { return Part{Text: s} }

func ImagePart(mimeType string, data []byte) Part { return Part{MIMEType: mimeType, Data: data} }

// Schema describes the JSON object the model must return. Type names follow
// the Gemini convention (OBJECT, STRING, NUMBER, INTEGER, BOOLEAN, ARRAY).
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type Request struct {
	System string
	Parts  []Part
	Schema *Schema
}

// Generator sends one request and returns the model's raw text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrMissingAPIKey is returned before any network call when no key is set.
var ErrMissingAPIKey = errors.New("missing API key")

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// NewGenerator builds the backend named by cfg.Provider.
func NewGenerator(cfg config.AIConfig, apiKey string, log *logger.Logger) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(cfg.Endpoint, apiKey, cfg.Model, log), nil
	case "openai":
		endpoint := cfg.Endpoint
		if endpoint == "" || strings.Contains(endpoint, "generativelanguage.googleapis.com") {
			endpoint = defaultOpenAIEndpoint
		} else if !strings.HasSuffix(endpoint, "/chat/completions") && !strings.Contains(endpoint, "?") {
			endpoint = strings.TrimRight(endpoint, "/") + "/chat/completions"
		}
		return NewOpenAIClient(endpoint, apiKey, log, WithModel(cfg.Model)), nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
