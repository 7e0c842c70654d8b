// Science Buddy - Socratic science dialogue server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/sciencebuddy/internal/api"
	"github.com/ashureev/sciencebuddy/internal/auth"
	"github.com/ashureev/sciencebuddy/internal/blob"
	"github.com/ashureev/sciencebuddy/internal/completion"
	"github.com/ashureev/sciencebuddy/internal/config"
	"github.com/ashureev/sciencebuddy/internal/content"
	"github.com/ashureev/sciencebuddy/internal/dialogue"
	"github.com/ashureev/sciencebuddy/internal/domain"
	"github.com/ashureev/sciencebuddy/internal/logsink"
	"github.com/ashureev/sciencebuddy/internal/middleware"
	"github.com/ashureev/sciencebuddy/internal/session"
	"github.com/ashureev/sciencebuddy/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(),
		"storage", cfg.Storage.Backend, "blob", cfg.Storage.Blob, "provider", cfg.Completion.Provider)

	blobs, err := blob.Open(ctx, cfg.Storage.Blob, cfg.Storage.DataDir, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := blobs.Close(); closeErr != nil {
			slog.Error("Failed to close blob store", "error", closeErr)
		}
	}()

	progress, err := store.Open(cfg.Storage.Backend, blobs, cfg.Storage.DBPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := progress.Close(); closeErr != nil {
			slog.Error("Failed to close progress store", "error", closeErr)
		}
	}()
	if err := progress.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Progress store connected")

	logs := logsink.New(blobs, logger)

	provider, err := content.NewFileProvider(cfg.Content.Dir, logger)
	if err != nil {
		return err
	}

	backend, err := completion.NewBackend(ctx, completion.Config{
		Provider: cfg.Completion.Provider,
		APIKey:   cfg.Completion.APIKey,
		Model:    cfg.Completion.Model,
		BaseURL:  cfg.Completion.BaseURL,
	})
	if err != nil {
		// Learners get the not-configured message until the key is fixed.
		slog.Warn("Completion backend unavailable", "provider", cfg.Completion.Provider, "error", err)
	}
	gateway := completion.NewGateway(backend, completion.GatewayConfig{
		MaxAttempts: cfg.Completion.MaxAttempts,
		BaseDelay:   cfg.Completion.BaseDelay,
		Timeout:     cfg.Completion.Timeout,
		MaxTokens:   cfg.Completion.MaxTokens,
	}, logger)

	engine := dialogue.NewEngine(dialogue.Deps{
		Progress:    progress,
		Content:     provider,
		Completer:   gateway,
		Logs:        logs,
		Transcripts: logs,
	}, policyFromConfig(cfg), logger)

	handler := api.NewHandler(api.Deps{
		Engine:  engine,
		Content: provider,
		Guard:   session.NewGuard(logger),
		Auth: auth.New(auth.Config{
			Credentials: cfg.Teacher.Credentials,
			Classes:     cfg.Teacher.Classes,
			TokenTTL:    cfg.Teacher.TokenTTL,
		}, logger),
		Logs:     logs,
		Progress: progress,
		Limiter:  api.NewRateLimiter(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window),
		IsDev:    cfg.IsDevelopment(),
		Logger:   logger,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Completion.Timeout*time.Duration(cfg.Completion.MaxAttempts) + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Content.Watch && cfg.Content.Dir != "" {
		g.Go(func() error {
			return provider.Watch(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func policyFromConfig(cfg *config.Config) dialogue.Policy {
	p := dialogue.DefaultPolicy()
	p.SummaryThreshold = cfg.Dialogue.SummaryThreshold
	p.HistoryLimit = cfg.Dialogue.HistoryLimit
	p.Temperatures = map[domain.Stage]float64{
		domain.StagePrediction: cfg.Dialogue.PredictionTemperature,
		domain.StageReflection: cfg.Dialogue.ReflectionTemperature,
	}
	p.SummaryTemperature = cfg.Dialogue.SummaryTemperature
	p.MaxTokens = cfg.Completion.MaxTokens
	p.Timeout = cfg.Completion.Timeout
	p.Normalize = cfg.Dialogue.Normalize
	return p
}
