// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	LogLevel       slog.Level

	Storage    StorageConfig
	Content    ContentConfig
	Completion CompletionConfig
	Dialogue   DialogueConfig
	Teacher    TeacherConfig
	RateLimit  RateLimitConfig
}

// StorageConfig selects where progress and learning logs live.
type StorageConfig struct {
	// Backend is "document" (one JSON document) or "sqlite" (one row per record).
	Backend string
	// Blob is "file" (DataDir) or "gcs" (GCSBucket).
	Blob      string
	DataDir   string
	DBPath    string
	GCSBucket string
	GCSPrefix string
}

// ContentConfig locates curriculum content.
type ContentConfig struct {
	Dir   string
	Watch bool
}

// CompletionConfig selects and tunes the generative backend.
type CompletionConfig struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	MaxTokens   int
}

// DialogueConfig holds the dialogue policy constants.
type DialogueConfig struct {
	SummaryThreshold      int
	HistoryLimit          int
	PredictionTemperature float64
	ReflectionTemperature float64
	SummaryTemperature    float64
	Normalize             bool
}

// TeacherConfig is the teacher directory.
type TeacherConfig struct {
	Credentials map[string]string
	Classes     map[string][]string
	TokenTTL    time.Duration
}

// RateLimitConfig bounds chat and summary requests per learner.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("COMPLETION_PROVIDER", "openai"))

	credentials, err := parsePairs(getEnv("TEACHER_CREDENTIALS", "teacher:science2025"))
	if err != nil {
		return nil, fmt.Errorf("TEACHER_CREDENTIALS: %w", err)
	}
	classes, err := parseClasses(getEnv("TEACHER_CLASSES", ""))
	if err != nil {
		return nil, fmt.Errorf("TEACHER_CLASSES: %w", err)
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       parseLevel(getEnv("LOG_LEVEL", "info")),
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "document")),
			Blob:      strings.ToLower(getEnv("BLOB_BACKEND", "file")),
			DataDir:   getEnv("DATA_DIR", "./data"),
			DBPath:    getEnv("DB_PATH", "./data/progress.db"),
			GCSBucket: getEnv("GCS_BUCKET", ""),
			GCSPrefix: getEnv("GCS_PREFIX", ""),
		},
		Content: ContentConfig{
			Dir:   getEnv("CONTENT_DIR", "./content"),
			Watch: getEnvBool("CONTENT_WATCH", true),
		},
		Completion: CompletionConfig{
			Provider:    provider,
			APIKey:      getEnv("COMPLETION_API_KEY", os.Getenv(providerKeyEnv(provider))),
			Model:       getEnv("COMPLETION_MODEL", ""),
			BaseURL:     getEnv("COMPLETION_BASE_URL", ""),
			MaxAttempts: getEnvInt("COMPLETION_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvDuration("COMPLETION_BASE_DELAY", 2*time.Second),
			Timeout:     getEnvDuration("COMPLETION_TIMEOUT", 30*time.Second),
			MaxTokens:   getEnvInt("COMPLETION_MAX_TOKENS", 2000),
		},
		Dialogue: DialogueConfig{
			SummaryThreshold:      getEnvInt("SUMMARY_THRESHOLD", 2),
			HistoryLimit:          getEnvInt("HISTORY_LIMIT", 10),
			PredictionTemperature: getEnvFloat("PREDICTION_TEMPERATURE", 0.7),
			ReflectionTemperature: getEnvFloat("REFLECTION_TEMPERATURE", 0.3),
			SummaryTemperature:    getEnvFloat("SUMMARY_TEMPERATURE", 0.2),
			Normalize:             getEnvBool("NORMALIZE_EXPRESSIONS", true),
		},
		Teacher: TeacherConfig{
			Credentials: credentials,
			Classes:     classes,
			TokenTTL:    getEnvDuration("TEACHER_TOKEN_TTL", 8*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("CHAT_RATE_LIMIT", 20),
			Window:   getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Storage.Backend {
	case "document":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty with STORAGE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be document or sqlite, got %q", c.Storage.Backend)
	}
	switch c.Storage.Blob {
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("DATA_DIR cannot be empty")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET cannot be empty with BLOB_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be file or gcs, got %q", c.Storage.Blob)
	}
	if c.Completion.MaxAttempts <= 0 {
		return fmt.Errorf("COMPLETION_MAX_ATTEMPTS must be > 0")
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.Dialogue.SummaryThreshold <= 0 {
		return fmt.Errorf("SUMMARY_THRESHOLD must be > 0")
	}
	if c.Dialogue.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if len(c.Teacher.Credentials) == 0 {
		return fmt.Errorf("TEACHER_CREDENTIALS cannot be empty")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT and CHAT_RATE_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// parsePairs reads "id:secret,id2:secret2".
func parsePairs(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range splitList(raw) {
		id, secret, ok := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("malformed entry %q, want id:password", item)
		}
		out[id] = secret
	}
	return out, nil
}

// parseClasses reads "tanaka=1|2,sato=*".
func parseClasses(raw string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, item := range splitList(raw) {
		id, list, ok := strings.Cut(item, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("malformed entry %q, want id=class|class", item)
		}
		var classes []string
		for _, c := range strings.Split(list, "|") {
			if c = strings.TrimSpace(c); c != "" {
				classes = append(classes, c)
			}
		}
		out[id] = classes
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
