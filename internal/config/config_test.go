package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("ASSEMBLYAI_POLL_INTERVAL_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load: %v", err)
	}
	if cfg.GeminiModel != "gemini-2.5-flash-lite" {
		t.Fatalf("expected default model, got %q", cfg.GeminiModel)
	}
	if cfg.AssemblyAIPollInterval != 5*time.Second || cfg.AssemblyAIMaxPolls != 60 {
		t.Fatalf("expected 60 polls every 5s, got %d every %s", cfg.AssemblyAIMaxPolls, cfg.AssemblyAIPollInterval)
	}
	if cfg.GeminiMaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.GeminiMaxRetries)
	}
}

func TestLoadPrefersEnvOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "GEMINI_MODEL: gemini-from-file\nRATE_LIMIT_BURST: 7\nWORKER_ENABLED: false\nCORS_ALLOWED_ORIGINS:\n  - https://a.example\n  - https://b.example\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GEMINI_MODEL", "gemini-from-env")
	t.Setenv("RATE_LIMIT_BURST", "")
	t.Setenv("WORKER_ENABLED", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load: %v", err)
	}
	if cfg.GeminiModel != "gemini-from-env" {
		t.Fatalf("expected env to win, got %q", cfg.GeminiModel)
	}
	if cfg.RateLimitBurst != 7 || cfg.WorkerEnabled {
		t.Fatalf("expected file values, got burst=%d worker=%v", cfg.RateLimitBurst, cfg.WorkerEnabled)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("expected origins from file, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadFailsOnUnreadableFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadDotEnvSkipsMissingAndKeepsProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("STUDYHUB_TEST_A=from-file\nSTUDYHUB_TEST_B=\"quoted value\"\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("STUDYHUB_TEST_A", "from-process")
	t.Setenv("STUDYHUB_TEST_B", "")
	os.Unsetenv("STUDYHUB_TEST_B")

	if err := LoadDotEnv(filepath.Join(dir, "absent.env"), path); err != nil {
		t.Fatalf("expected dotenv to load: %v", err)
	}
	if got := os.Getenv("STUDYHUB_TEST_A"); got != "from-process" {
		t.Fatalf("expected process env to win, got %q", got)
	}
	if got := os.Getenv("STUDYHUB_TEST_B"); got != "quoted value" {
		t.Fatalf("expected quoted value, got %q", got)
	}
}
