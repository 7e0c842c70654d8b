package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicBackend creates an Anthropic backend.
func NewAnthropicBackend(cfg Config) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by the gateway.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicBackend{client: &client, model: model}, nil
}

// Complete sends one Messages request.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	system, rest := splitSystem(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    buildAnthropicMessages(rest),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", err
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", ErrEmptyResponse
}

// Name returns "anthropic".
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

func buildAnthropicMessages(msgs []domain.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, len(msgs))
	for i, m := range msgs {
		role := anthropic.MessageParamRoleUser
		if m.Role == domain.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out[i] = anthropic.MessageParam{
			Role: role,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(m.Content),
			},
		}
	}
	return out
}
