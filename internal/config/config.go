package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TASKBOARD_"

type Config struct {
	APIBaseURL            string `json:"api_base_url"`
	SessionPath           string `json:"session_path"`
	LogPath               string `json:"log_path"`
	LogLevel              string `json:"log_level"`
	SearchDebounceMS      int    `json:"search_debounce_ms"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	WatchIntervalMS       int    `json:"watch_interval_ms"`
	UseStatusEndpoint     bool   `json:"use_status_endpoint"`
}

func Default() Config {
	return Config{
		APIBaseURL:            "http://127.0.0.1:8001/api",
		LogLevel:              "info",
		SearchDebounceMS:      300,
		RequestTimeoutSeconds: 15,
		WatchIntervalMS:       500,
		UseStatusEndpoint:     true,
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "taskboard", "config.json"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, err
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// LoadEnvFile does not override variables that are already set.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func ApplyEnv(cfg Config) (Config, error) {
	cfg.APIBaseURL = getEnv("API_BASE_URL", cfg.APIBaseURL)
	cfg.SessionPath = getEnv("SESSION_PATH", cfg.SessionPath)
	cfg.LogPath = getEnv("LOG_PATH", cfg.LogPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	ints := []struct {
		key    string
		target *int
	}{
		{"SEARCH_DEBOUNCE_MS", &cfg.SearchDebounceMS},
		{"REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSeconds},
		{"WATCH_INTERVAL_MS", &cfg.WatchIntervalMS},
	}
	for _, item := range ints {
		raw := getEnv(item.key, "")
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return Config{}, fmt.Errorf("%s%s: invalid value %q", envPrefix, item.key, raw)
		}
		*item.target = value
	}

	if raw := getEnv("USE_STATUS_ENDPOINT", ""); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%sUSE_STATUS_ENDPOINT: invalid value %q", envPrefix, raw)
		}
		cfg.UseStatusEndpoint = value
	}
	return cfg, nil
}

func Resolve(cfg Config, configPath string) Config {
	dir := filepath.Dir(configPath)
	if cfg.SessionPath == "" {
		cfg.SessionPath = filepath.Join(dir, "session.db")
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(dir, "taskboard.log")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = Default().APIBaseURL
	}
	return cfg
}

func (c Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalMS) * time.Millisecond
}

func getEnv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}
