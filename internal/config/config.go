package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/redactomat/internal/catalog"
	"github.com/raphaelgruber/redactomat/internal/preferences"
	"github.com/raphaelgruber/redactomat/internal/validator"
)

// ErrMissingAPIURL is returned by Validate when no backend is configured.
var ErrMissingAPIURL = errors.New("API URL is not configured (set REDACT_API_URL)")

// Config holds all configuration values.
type Config struct {
	// Backend
	APIURL      string
	Token       string
	HTTPTimeout time.Duration

	// Task lifecycle
	PollInterval     time.Duration
	Catalog          string
	DefaultSelection preferences.DefaultPolicy
	MaxPages         int
	MaxBytes         int64

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Source is the config file that was read, if any.
	Source string
}

// fileConfig is the YAML config file layout.
type fileConfig struct {
	APIURL           string `yaml:"api_url"`
	Token            string `yaml:"token"`
	HTTPTimeout      string `yaml:"http_timeout"`
	PollInterval     string `yaml:"poll_interval"`
	Catalog          string `yaml:"catalog"`
	DefaultSelection string `yaml:"default_selection"`
	MaxPages         int    `yaml:"max_pages"`
	MaxBytes         int64  `yaml:"max_bytes"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPTimeout:      2 * time.Minute,
		PollInterval:     time.Second,
		Catalog:          catalog.Minimal,
		DefaultSelection: preferences.SelectAll,
		MaxPages:         validator.DefaultMaxPages,
		MaxBytes:         validator.DefaultMaxBytes,
		LogFile:          filepath.Join(os.TempDir(), "redactomat.log"),
		LogLevel:         slog.LevelInfo,
	}
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML config file, a .env file in the working directory and the
// process environment.
func Load() (Config, error) {
	// .env never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()

	path := getEnv("REDACT_CONFIG", defaultConfigPath())
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "redactomat", "config.yaml")
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.Source = path
	setString(&c.APIURL, fc.APIURL)
	setString(&c.Token, fc.Token)
	setString(&c.Catalog, fc.Catalog)
	setString(&c.LogFile, fc.LogFile)
	if fc.MaxPages > 0 {
		c.MaxPages = fc.MaxPages
	}
	if fc.MaxBytes > 0 {
		c.MaxBytes = fc.MaxBytes
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if err := setDuration(&c.HTTPTimeout, "http_timeout", fc.HTTPTimeout); err != nil {
		return err
	}
	if err := setDuration(&c.PollInterval, "poll_interval", fc.PollInterval); err != nil {
		return err
	}
	if fc.DefaultSelection != "" {
		p, err := preferences.ParsePolicy(fc.DefaultSelection)
		if err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		c.DefaultSelection = p
	}
	return nil
}

func (c *Config) mergeEnv() error {
	// The VITE_ names are what the web client's .env files use.
	setString(&c.APIURL, firstEnv("REDACT_API_URL", "VITE_API_URL"))
	setString(&c.Token, firstEnv("REDACT_TOKEN", "VITE_BEARER_TOKEN"))
	setString(&c.Catalog, os.Getenv("REDACT_CATALOG"))
	setString(&c.LogFile, os.Getenv("REDACT_LOG_FILE"))

	if v := os.Getenv("REDACT_LOG_LEVEL"); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	if err := setDuration(&c.HTTPTimeout, "REDACT_HTTP_TIMEOUT", os.Getenv("REDACT_HTTP_TIMEOUT")); err != nil {
		return err
	}
	if err := setDuration(&c.PollInterval, "REDACT_POLL_INTERVAL", os.Getenv("REDACT_POLL_INTERVAL")); err != nil {
		return err
	}
	if v := os.Getenv("REDACT_DEFAULT_SELECTION"); v != "" {
		p, err := preferences.ParsePolicy(v)
		if err != nil {
			return fmt.Errorf("REDACT_DEFAULT_SELECTION: %w", err)
		}
		c.DefaultSelection = p
	}
	if v := os.Getenv("REDACT_MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("REDACT_MAX_PAGES: invalid value %q", v)
		}
		c.MaxPages = n
	}
	if v := os.Getenv("REDACT_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("REDACT_MAX_BYTES: invalid value %q", v)
		}
		c.MaxBytes = n
	}
	return nil
}

// Validate checks the settings needed to talk to the backend.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if _, err := catalog.Lookup(c.Catalog); err != nil {
		return err
	}
	return nil
}

// Limits returns the validator limits.
func (c Config) Limits() validator.Limits {
	return validator.Limits{MaxBytes: c.MaxBytes, MaxPages: c.MaxPages}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("%s: invalid duration %q", name, v)
	}
	*dst = d
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
