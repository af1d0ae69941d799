package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"foodbridge/internal/logger"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// Content is a text or image_url block.
type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type payload struct {
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	Model          string          `json:"model,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type ClientOption func(*OpenAIClient)

func WithModel(model string) ClientOption {
	return func(c *OpenAIClient) { c.model = model }
}

func WithTemperature(t float64) ClientOption {
	return func(c *OpenAIClient) { c.temperature = t }
}

func WithMaxTokens(n int) ClientOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *OpenAIClient) { c.http.Timeout = d }
}

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
// Azure deployments authenticate with the api-key header, others with a
// bearer token.
type OpenAIClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	http        *http.Client
	log         *logger.Logger
}

func NewOpenAIClient(endpoint, apiKey string, log *logger.Logger, opts ...ClientOption) *OpenAIClient {
	c := &OpenAIClient{
		endpoint:    endpoint,
		apiKey:      apiKey,
		temperature: 0.2,
		maxTokens:   800,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// schemaHint spells out the keys since chat completions only enforce JSON.
func schemaHint(s *Schema) string {
	if s == nil || len(s.Properties) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("Respond with one JSON object with these keys:")
	for _, k := range keys {
		p := s.Properties[k]
		fmt.Fprintf(&sb, "\n- %s (%s)", k, strings.ToLower(p.Type))
		if len(p.Enum) > 0 {
			fmt.Fprintf(&sb, " one of %s", strings.Join(p.Enum, ", "))
		}
		if p.Description != "" {
			fmt.Fprintf(&sb, ": %s", p.Description)
		}
	}
	return sb.String()
}

func (c *OpenAIClient) Generate(ctx context.Context, r Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	system := strings.TrimSpace(r.System + "\n\n" + schemaHint(r.Schema))
	user := Message{Role: RoleUser}
	for _, p := range r.Parts {
		if len(p.Data) > 0 {
			uri := "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
			user.Content = append(user.Content, Content{Type: "image_url", ImageURL: &ImageURL{URL: uri}})
			continue
		}
		user.Content = append(user.Content, Content{Type: "text", Text: p.Text})
	}
	body := payload{
		Messages: []Message{
			{Role: RoleSystem, Content: []Content{{Type: "text", Text: system}}},
			user,
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		Model:          c.model,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gpt: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("gpt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.Contains(c.endpoint, ".openai.azure.com") {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.log.Debug("gpt: POST %s (%d bytes)", c.endpoint, len(jsonData))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gpt: request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gpt: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Provider: "gpt", StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("gpt: unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("gpt: empty response (no choices)")
	}
	reply := result.Choices[0].Message.Content
	c.log.Debug("gpt: reply (%d chars): %s", len(reply), truncate(reply, 120))
	return reply, nil
}
