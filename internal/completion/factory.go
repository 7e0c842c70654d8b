package completion

import (
	"context"
	"fmt"
)

// Config selects and configures a backend.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// NewBackend builds the backend named by cfg.Provider. On error the
// returned Backend is a nil interface, so it can go straight to NewGateway.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "openai", "":
		b, err := NewOpenAIBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "anthropic":
		b, err := NewAnthropicBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "gemini":
		b, err := NewGeminiBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "ollama":
		b, err := NewOllamaBackend(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "stub":
		stub := NewStubBackend()
		stub.Fallback = "どうしてそう思ったのかな？"
		return stub, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
