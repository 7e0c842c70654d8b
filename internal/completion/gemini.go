package completion

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiBackend calls the Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini backend.
func NewGeminiBackend(ctx context.Context, cfg Config) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiBackend{client: client, model: model}, nil
}

// Complete sends one GenerateContent request.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	system, rest := splitSystem(req.Messages)
	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		Temperature:     &temp,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := b.client.Models.GenerateContent(ctx, b.model, buildGeminiContents(rest), config)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			return "", &StatusError{StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
		}
		return "", err
	}
	return result.Text(), nil
}

// Name returns "gemini".
func (b *GeminiBackend) Name() string {
	return "gemini"
}

func buildGeminiContents(msgs []domain.Message) []*genai.Content {
	out := make([]*genai.Content, len(msgs))
	for i, m := range msgs {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		out[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		}
	}
	return out
}
