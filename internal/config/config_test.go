package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "stub")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Storage.Backend != "document" || cfg.Storage.Blob != "file" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Dialogue.SummaryThreshold != 2 || cfg.Dialogue.HistoryLimit != 10 {
		t.Errorf("dialogue = %+v", cfg.Dialogue)
	}
	if cfg.Completion.MaxAttempts != 3 || cfg.Completion.BaseDelay != 2*time.Second || cfg.Completion.Timeout != 30*time.Second {
		t.Errorf("completion = %+v", cfg.Completion)
	}
	if cfg.Teacher.Credentials["teacher"] != "science2025" {
		t.Errorf("default teacher credentials missing: %v", cfg.Teacher.Credentials)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SUMMARY_THRESHOLD", "3")
	t.Setenv("PREDICTION_TEMPERATURE", "0.9")
	t.Setenv("COMPLETION_BASE_DELAY", "500ms")
	t.Setenv("TEACHER_CREDENTIALS", "tanaka:pw1, sato:pw2")
	t.Setenv("TEACHER_CLASSES", "tanaka=1|2,sato=*")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NORMALIZE_EXPRESSIONS", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Completion.Provider != "anthropic" || cfg.Completion.APIKey != "sk-ant" {
		t.Errorf("completion = %+v", cfg.Completion)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Dialogue.SummaryThreshold != 3 || cfg.Dialogue.PredictionTemperature != 0.9 || cfg.Dialogue.Normalize {
		t.Errorf("dialogue = %+v", cfg.Dialogue)
	}
	if cfg.Completion.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v", cfg.Completion.BaseDelay)
	}
	if len(cfg.Teacher.Credentials) != 2 || cfg.Teacher.Credentials["sato"] != "pw2" {
		t.Errorf("credentials = %v", cfg.Teacher.Credentials)
	}
	if got := cfg.Teacher.Classes["tanaka"]; len(got) != 2 || got[1] != "2" {
		t.Errorf("classes = %v", cfg.Teacher.Classes)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown storage":    {"STORAGE_BACKEND": "mongo"},
		"gcs without bucket": {"BLOB_BACKEND": "gcs"},
		"bad credentials":    {"TEACHER_CREDENTIALS": "nopassword"},
		"zero threshold":     {"SUMMARY_THRESHOLD": "0"},
		"empty port":         {"PORT": ""},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
