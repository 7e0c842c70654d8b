// Package completion calls a generative-text backend with bounded retries
// and classifies its failures into user-facing messages.
package completion

import (
	"context"
	"strings"
	"time"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

const (
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// Request is a single chat-style call to a backend.
type Request struct {
	Messages    []domain.Message
	Temperature float64
	MaxTokens   int
}

// Backend is a generative-text service.
type Backend interface {
	// Complete returns the model's reply text.
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the backend in logs.
	Name() string
}

// Options tune one gateway call. Zero values fall back to the defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// splitSystem joins all system messages into one instruction and returns
// the remaining conversation. Backends with a dedicated system field use it.
func splitSystem(msgs []domain.Message) (string, []domain.Message) {
	var system []string
	rest := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
