package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points HOME at a fresh temp dir and blanks every config
// env var so tests see only what they set themselves.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"HANDOFF_LISTEN_ADDR", "HANDOFF_DB_PATH", "HANDOFF_LOG_LEVEL",
		"ANTHROPIC_API_KEY", "HANDOFF_ANTHROPIC_MODEL",
		"HANDOFF_SEARCH_BASE_URL", "HANDOFF_SEARCH_API_KEY", "HANDOFF_SEARCH_TOP_K",
		"HANDOFF_STALE_SCHEDULE", "HANDOFF_STALE_AFTER",
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeSettings(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".handoff")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateEnv(t)

	cfg := loadConfig()

	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".handoff", "handoff.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.SearchTopK)
	assert.Equal(t, "24h", cfg.StaleAfter)
	assert.Empty(t, cfg.AnthropicAPIKey)
	assert.Empty(t, cfg.Rules)
}

func TestLoadConfig_SettingsFileOverridesDefaults(t *testing.T) {
	home := isolateEnv(t)
	writeSettings(t, home, `{
		"listen_addr": ":9999",
		"log_level": "debug",
		"search_base_url": "https://search.internal",
		"search_top_k": 8,
		"rules": [{"expression": "results == 0", "reason": "no_results"}]
	}`)

	cfg := loadConfig()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://search.internal", cfg.SearchBaseURL)
	assert.Equal(t, 8, cfg.SearchTopK)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "results == 0", cfg.Rules[0].Expression)

	// Untouched keys keep their defaults.
	assert.Equal(t, filepath.Join(home, ".handoff", "handoff.db"), cfg.DBPath)
	assert.Equal(t, "24h", cfg.StaleAfter)
}

func TestLoadConfig_EnvOverridesSettings(t *testing.T) {
	home := isolateEnv(t)
	writeSettings(t, home, `{
		"listen_addr": ":1111",
		"anthropic_api_key": "from-file",
		"search_top_k": 3
	}`)
	t.Setenv("HANDOFF_LISTEN_ADDR", ":2222")
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("HANDOFF_SEARCH_TOP_K", "12")
	t.Setenv("HANDOFF_STALE_AFTER", "72h")

	cfg := loadConfig()

	assert.Equal(t, ":2222", cfg.ListenAddr)
	assert.Equal(t, "from-env", cfg.AnthropicAPIKey)
	assert.Equal(t, 12, cfg.SearchTopK)
	assert.Equal(t, "72h", cfg.StaleAfter)
}

func TestLoadConfig_MalformedTopKEnvIgnored(t *testing.T) {
	isolateEnv(t)
	t.Setenv("HANDOFF_SEARCH_TOP_K", "a dozen")

	cfg := loadConfig()

	assert.Equal(t, 5, cfg.SearchTopK)
}

func TestConfig_StaleAfter(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"45m", 45 * time.Minute},
		{"72h", 72 * time.Hour},
		{"soonish", 24 * time.Hour},
		{"-1h", 24 * time.Hour},
		{"0", 24 * time.Hour},
		{"", 24 * time.Hour},
	}
	for _, tt := range tests {
		cfg := Config{StaleAfter: tt.value}
		assert.Equal(t, tt.want, cfg.staleAfter(), "stale_after=%q", tt.value)
	}
}
