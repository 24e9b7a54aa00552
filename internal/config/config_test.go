package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/redactomat/internal/preferences"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no config file and a
// clean REDACT_ environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{
		"REDACT_API_URL", "REDACT_TOKEN", "VITE_API_URL", "VITE_BEARER_TOKEN",
		"REDACT_CATALOG", "REDACT_DEFAULT_SELECTION", "REDACT_POLL_INTERVAL",
		"REDACT_HTTP_TIMEOUT", "REDACT_LOG_FILE", "REDACT_LOG_LEVEL",
		"REDACT_MAX_PAGES", "REDACT_MAX_BYTES",
	} {
		// Setenv registers the restore; godotenv only fills unset keys.
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("REDACT_CONFIG", filepath.Join(dir, "missing.yaml"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "minimal", cfg.Catalog)
	assert.Equal(t, preferences.SelectAll, cfg.DefaultSelection)
	assert.Equal(t, 10, cfg.MaxPages)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxBytes)
	assert.Empty(t, cfg.Source)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingAPIURL)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
api_url: https://file.example.com
token: file-token
catalog: extended
default_selection: none
poll_interval: 2s
max_pages: 20
log_level: debug
`), 0o644))
	t.Setenv("REDACT_CONFIG", yamlPath)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VITE_BEARER_TOKEN=dotenv-token\n"), 0o644))
	t.Setenv("REDACT_API_URL", "https://env.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, yamlPath, cfg.Source)
	assert.Equal(t, "https://env.example.com", cfg.APIURL, "env beats file")
	assert.Equal(t, "dotenv-token", cfg.Token, ".env beats file")
	assert.Equal(t, "extended", cfg.Catalog)
	assert.Equal(t, preferences.SelectNone, cfg.DefaultSelection)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 20, cfg.MaxPages)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"REDACT_POLL_INTERVAL", "soon"},
		{"REDACT_POLL_INTERVAL", "-1s"},
		{"REDACT_HTTP_TIMEOUT", "x"},
		{"REDACT_DEFAULT_SELECTION", "some"},
		{"REDACT_MAX_PAGES", "0"},
		{"REDACT_MAX_BYTES", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o644))
	t.Setenv("REDACT_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateUnknownCatalog(t *testing.T) {
	cfg := Defaults()
	cfg.APIURL = "https://x"
	cfg.Catalog = "huge"
	assert.Error(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), tt.in)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("task accepted", "task_id", "t-1")
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "task_id=t-1")
	assert.NotContains(t, stderr.String(), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &rec))
	assert.Equal(t, "task accepted", rec["msg"])
}

func TestSetupLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "redact.log")
	logger, cleanup := SetupLogger(path, slog.LevelDebug, slog.LevelError)
	logger.Debug("only in file")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "only in file")
}
