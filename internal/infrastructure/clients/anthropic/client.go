package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/pkg/config"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

// Messager is the part of the SDK client the JSON model needs.
type Messager interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client calls the Anthropic Messages API at temperature 0.
type Client struct {
	messages  Messager
	model     string
	maxTokens int64
}

var _ providers.JSONModel = (*Client)(nil)

// NewClient creates a client from configuration. Retries are disabled: resubmitting
// a transcript is the caller's decision.
func NewClient(cfg *config.AnthropicConfig, timeout time.Duration) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.NewModelUnavailableError("anthropic api key is required", nil)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	c := sdk.NewClient(opts...)
	return NewClientWithMessager(&c.Messages, cfg.Model, cfg.MaxTokens), nil
}

// NewClientWithMessager wires an arbitrary Messager, mainly for tests.
func NewClientWithMessager(messages Messager, model string, maxTokens int) *Client {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Client{messages: messages, model: model, maxTokens: int64(maxTokens)}
}

func (c *Client) Name() string { return "anthropic" }

// jsonPrefill starts the assistant turn so the reply can only continue a JSON object.
const jsonPrefill = "{"

// CompleteJSON returns the prefill plus the concatenated text blocks of the reply.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
			sdk.NewAssistantMessage(sdk.NewTextBlock(jsonPrefill)),
		},
		Temperature: sdk.Float(0),
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", apperrors.NewModelUnavailableError(fmt.Sprintf("anthropic request rejected with status %d", apiErr.StatusCode), err)
		}
		return "", apperrors.NewModelUnavailableError("anthropic request failed", err)
	}

	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", apperrors.NewMalformedModelResponseError("anthropic response has no text", nil)
	}
	return jsonPrefill + sb.String(), nil
}
