package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if !cfg.UseStatusEndpoint {
		t.Fatalf("expected status endpoint enabled by default")
	}
}

func TestSaveLoadRoundTripKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"api_base_url":"https://tasks.example/api/"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://tasks.example/api/" {
		t.Fatalf("unexpected base url %q", cfg.APIBaseURL)
	}
	if cfg.SearchDebounce() != 300*time.Millisecond {
		t.Fatalf("expected default debounce, got %s", cfg.SearchDebounce())
	}

	cfg.UseStatusEndpoint = false
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded != cfg {
		t.Fatalf("expected %+v, got %+v", cfg, reloaded)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("TASKBOARD_API_BASE_URL", "http://env.example/api")
	t.Setenv("TASKBOARD_SEARCH_DEBOUNCE_MS", "150")
	t.Setenv("TASKBOARD_USE_STATUS_ENDPOINT", "false")

	cfg, err := ApplyEnv(Default())
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.APIBaseURL != "http://env.example/api" {
		t.Fatalf("unexpected base url %q", cfg.APIBaseURL)
	}
	if cfg.SearchDebounce() != 150*time.Millisecond {
		t.Fatalf("unexpected debounce %s", cfg.SearchDebounce())
	}
	if cfg.UseStatusEndpoint {
		t.Fatalf("expected status endpoint disabled")
	}
	if cfg.RequestTimeout() != 15*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.RequestTimeout())
	}
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("TASKBOARD_REQUEST_TIMEOUT_SECONDS", "soon")
	if _, err := ApplyEnv(Default()); err == nil {
		t.Fatalf("expected error for non-numeric timeout")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnvFile(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TASKBOARD_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TASKBOARD_LOG_LEVEL", "")
	if err := os.Unsetenv("TASKBOARD_LOG_LEVEL"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	cfg, err := ApplyEnv(Default())
	if err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug from .env, got %q", cfg.LogLevel)
	}
}

func TestResolveFillsPathsNextToConfig(t *testing.T) {
	cfg := Resolve(Config{}, filepath.Join("base", "config.json"))
	if cfg.SessionPath != filepath.Join("base", "session.db") {
		t.Fatalf("unexpected session path %q", cfg.SessionPath)
	}
	if cfg.LogPath != filepath.Join("base", "taskboard.log") {
		t.Fatalf("unexpected log path %q", cfg.LogPath)
	}
	if cfg.APIBaseURL == "" {
		t.Fatalf("expected default base url")
	}
}
