package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/handoff/internal/escalation"
)

// Config holds all handoff server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string            `json:"listen_addr"`
	DBPath          string            `json:"db_path"`
	LogLevel        string            `json:"log_level"`
	AnthropicAPIKey string            `json:"anthropic_api_key"`
	AnthropicModel  string            `json:"anthropic_model"`
	SearchBaseURL   string            `json:"search_base_url"`
	SearchAPIKey    string            `json:"search_api_key"`
	SearchTopK      int               `json:"search_top_k"`
	StaleSchedule   string            `json:"stale_schedule"`
	StaleAfter      string            `json:"stale_after"`
	Rules           []escalation.Rule `json:"rules"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		DBPath:     filepath.Join(handoffDir(), "handoff.db"),
		LogLevel:   "info",
		SearchTopK: 5,
		StaleAfter: "24h",
	}
}

func handoffDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".handoff"
	}
	return filepath.Join(home, ".handoff")
}

func settingsPath() string {
	return filepath.Join(handoffDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("HANDOFF_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("HANDOFF_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("HANDOFF_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("HANDOFF_ANTHROPIC_MODEL"); v != "" {
		cfg.AnthropicModel = v
	}
	if v := os.Getenv("HANDOFF_SEARCH_BASE_URL"); v != "" {
		cfg.SearchBaseURL = v
	}
	if v := os.Getenv("HANDOFF_SEARCH_API_KEY"); v != "" {
		cfg.SearchAPIKey = v
	}
	if v := os.Getenv("HANDOFF_SEARCH_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SearchTopK = n
		}
	}
	if v := os.Getenv("HANDOFF_STALE_SCHEDULE"); v != "" {
		cfg.StaleSchedule = v
	}
	if v := os.Getenv("HANDOFF_STALE_AFTER"); v != "" {
		cfg.StaleAfter = v
	}

	return cfg
}

// staleAfter parses the configured threshold, falling back to the
// default on a malformed value.
func (c Config) staleAfter() time.Duration {
	d, err := time.ParseDuration(c.StaleAfter)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}
