// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Sync    SyncConfig
	Reading ReadingConfig
	Import  ImportConfig
	Search  SearchConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	// BasePath is the root directory for the library database, payload
	// cache, and search index.
	BasePath string
}

// SyncConfig holds remote synchronization configuration.
type SyncConfig struct {
	// RemoteURL is the base URL of the sync service. Empty disables sync.
	RemoteURL string
	// Token is the bearer token presented to the sync service. Read
	// from the environment only, never from a flag.
	Token string
	// Interval between opportunistic sync rounds.
	Interval time.Duration
	// UploadRPS limits outbound requests per second against the service.
	UploadRPS float64
	// PayloadTTL bounds how long staged compressed payloads are kept.
	PayloadTTL time.Duration
}

// ReadingConfig holds reading session configuration.
type ReadingConfig struct {
	// DebounceWindow is the idle window before buffered progress is written.
	DebounceWindow time.Duration
	// MinSessionDuration is the threshold below which an ended session is
	// discarded instead of persisted.
	MinSessionDuration time.Duration
}

// ImportConfig holds book import configuration.
type ImportConfig struct {
	// DropPath is an optional directory watched for finished book bundles.
	DropPath string
}

// SearchConfig holds library search configuration.
type SearchConfig struct {
	Enabled bool
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	basePath := flag.String("data-path", "", "Base path for library storage")
	remoteURL := flag.String("remote-url", "", "Base URL of the sync service")
	syncInterval := flag.String("sync-interval", "", "Interval between sync rounds (default: 5m)")
	dropPath := flag.String("import-drop-path", "", "Directory watched for finished book bundles")
	searchEnabled := flag.String("search-enabled", "", "Enable library search indexing (default: true)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			BasePath: getConfigValue(*basePath, "DATA_PATH", ""),
		},
		Sync: SyncConfig{
			RemoteURL: getConfigValue(*remoteURL, "REMOTE_URL", ""),
			Token:     getConfigValue("", "SYNC_TOKEN", ""),
			UploadRPS: float64(getIntConfigValue("", "SYNC_UPLOAD_RPS", 4)),
		},
		Import: ImportConfig{
			DropPath: getConfigValue(*dropPath, "IMPORT_DROP_PATH", ""),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
		},
	}

	// Parse durations.
	var err error
	cfg.Sync.Interval, err = parseDurationValue(*syncInterval, "SYNC_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}
	cfg.Sync.PayloadTTL, err = parseDurationValue("", "SYNC_PAYLOAD_TTL", "72h")
	if err != nil {
		return nil, err
	}
	cfg.Reading.DebounceWindow, err = parseDurationValue("", "READING_DEBOUNCE_WINDOW", "3s")
	if err != nil {
		return nil, err
	}
	cfg.Reading.MinSessionDuration, err = parseDurationValue("", "READING_MIN_SESSION", "30s")
	if err != nil {
		return nil, err
	}

	if err := cfg.expandBasePath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.expandDropPath(); err != nil {
		return nil, fmt.Errorf("invalid import drop path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.BasePath == "" {
		return errors.New("storage base path cannot be empty after expansion")
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.Reading.DebounceWindow <= 0 {
		return errors.New("reading debounce window must be positive")
	}
	if c.Reading.MinSessionDuration < 0 {
		return errors.New("reading min session duration cannot be negative")
	}

	// RemoteURL can be empty - the library is fully usable offline.

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandBasePath expands ~ and makes the path absolute.
func (c *Config) expandBasePath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Inkwell")

	expanded, err := expandPath(c.Storage.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.BasePath = expanded
	return nil
}

// expandDropPath expands ~ and makes the path absolute.
// If empty, leaves it empty - the import watcher is optional.
func (c *Config) expandDropPath() error {
	if c.Import.DropPath == "" {
		return nil
	}

	expanded, err := expandPath(c.Import.DropPath, "")
	if err != nil {
		return err
	}
	c.Import.DropPath = expanded
	return nil
}

// parseDurationValue parses a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	str := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, str, err)
	}
	return d, nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Only set if not already in the environment (env vars win over .env).
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}
