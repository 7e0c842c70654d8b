package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/sciencebuddy/internal/domain"
)

// GatewayConfig bounds the retry loop.
type GatewayConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	MaxTokens   int
}

// DefaultGatewayConfig returns three attempts, 2s linear backoff and a 30s
// per-attempt timeout.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Timeout:     DefaultTimeout,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Gateway wraps a Backend with retries and failure classification.
type Gateway struct {
	backend Backend
	cfg     GatewayConfig
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a gateway. A nil backend makes every call fail with
// ClassNotConfigured.
func NewGateway(backend Backend, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGatewayConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		log:     logger,
		sleep:   sleepContext,
	}
}

// Complete sends msgs to the backend. Transient failures are retried with
// a linear backoff of attempt × BaseDelay; terminal failures return at once.
// Every failure is returned as *Error.
func (g *Gateway) Complete(ctx context.Context, msgs []domain.Message, opts Options) (string, error) {
	if g.backend == nil {
		return "", &Error{Class: ClassNotConfigured}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.cfg.Timeout
	}
	req := Request{
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.cfg.MaxTokens
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		text, err := g.attempt(ctx, req, timeout)
		if err == nil {
			g.log.Debug("Completion succeeded",
				"backend", g.backend.Name(),
				"attempt", attempt,
				"elapsed", time.Since(start),
				"length", len(text))
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", &Error{Class: ClassUnreachable, Attempts: attempt, Err: ctx.Err()}
		}

		class := Classify(err)
		if !class.Transient() {
			g.log.Warn("Completion failed, not retrying",
				"backend", g.backend.Name(),
				"attempt", attempt,
				"class", class,
				"error", err)
			return "", &Error{Class: class, Attempts: attempt, Err: err}
		}

		g.log.Warn("Completion attempt failed",
			"backend", g.backend.Name(),
			"attempt", attempt,
			"max_attempts", g.cfg.MaxAttempts,
			"class", class,
			"error", err)

		if attempt < g.cfg.MaxAttempts {
			if err := g.sleep(ctx, time.Duration(attempt)*g.cfg.BaseDelay); err != nil {
				return "", &Error{Class: ClassUnreachable, Attempts: attempt, Err: err}
			}
		}
	}

	return "", &Error{Class: ClassUnreachable, Attempts: g.cfg.MaxAttempts, Err: lastErr}
}

func (g *Gateway) attempt(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := g.backend.Complete(actx, req)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", errors.Join(context.DeadlineExceeded, err)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
