package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// OllamaBackend calls a local or remote Ollama server.
type OllamaBackend struct {
	client *api.Client
	model  string
}

// NewOllamaBackend creates an Ollama backend. No API key is needed.
func NewOllamaBackend(cfg Config) (*OllamaBackend, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = defaultOllamaURL
	}
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse Ollama URL: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaBackend{
		client: api.NewClient(baseURL, &http.Client{}),
		model:  model,
	}, nil
}

// Complete sends one non-streaming chat request.
func (b *OllamaBackend) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"num_predict": req.MaxTokens,
			"temperature": req.Temperature,
		},
	}

	var out strings.Builder
	err := b.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			return "", &StatusError{StatusCode: statusErr.StatusCode, Message: statusErr.ErrorMessage, Err: err}
		}
		return "", err
	}
	return out.String(), nil
}

// Name returns "ollama".
func (b *OllamaBackend) Name() string {
	return "ollama"
}
