// Package tutor talks to the language model and keeps the conversation
// history of a tutoring session.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
)

// ErrEmptyReply is returned when the model answers without any text.
var ErrEmptyReply = errors.New("tutor: model returned no text")

// Completer produces the next assistant message for a conversation.
type Completer interface {
	Complete(ctx context.Context, system string, history []Message) (string, error)
}

// ModelInfo describes a model available to the API key.
type ModelInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	// HTTPClient overrides the transport; nil uses the SDK default.
	HTTPClient *http.Client
}

// Client calls the Anthropic Messages API with one configured model.
type Client struct {
	api       anthropic.Client
	model     string
	maxTokens int64
}

var _ Completer = (*Client)(nil)

// NewClient creates a model client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// A failed turn is reported to the student instead of retried.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:       anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends the system prompt and history and returns the text of the
// reply. Text blocks are concatenated in order.
func (c *Client) Complete(ctx context.Context, system string, history []Message) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("tutor: empty conversation")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  toParams(history),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyReply
	}
	return b.String(), nil
}

// Models lists the models available to the configured API key.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	page, err := c.api.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			CreatedAt:   m.CreatedAt,
		})
	}
	return models, nil
}

func toParams(history []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// StatusCode extracts the HTTP status of a failed API call, or 0.
func StatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

