package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var suffixPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Config holds all configuration for the application.
type Config struct {
	BasePath         string
	DBPath           string
	User             string
	MarkerSuffix     string
	ExtractorsConfig string
	APIPort          string
	LogLevel         slog.Level
	LogFormat        string
	S3Region         string
	S3Endpoint       string
	S3PathStyle      bool
	S3AccessKeyID    string
	S3SecretKey      string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or up to five parents, it is loaded.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		BasePath:         getEnv("ELN_BASE_PATH", ""),
		DBPath:           getEnv("DB_PATH", "./data/labtree.db"),
		User:             getEnv("ELN_USER", getEnv("USER", "unknown")),
		MarkerSuffix:     getEnv("MARKER_SUFFIX", "eln"),
		ExtractorsConfig: getEnv("EXTRACTORS_CONFIG", ""),
		APIPort:          getEnv("API_PORT", "9000"),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:    getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      getEnv("S3_SECRET_ACCESS_KEY", ""),
	}

	if cfg.BasePath == "" {
		return nil, fmt.Errorf("ELN_BASE_PATH is required")
	}
	absBase, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("ELN_BASE_PATH is invalid: %w", err)
	}
	cfg.BasePath = absBase

	if !suffixPattern.MatchString(cfg.MarkerSuffix) {
		return nil, fmt.Errorf("MARKER_SUFFIX must be alphanumeric, got %q", cfg.MarkerSuffix)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if v := getEnv("S3_PATH_STYLE", ""); v != "" {
		pathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("S3_PATH_STYLE must be a boolean: %w", err)
		}
		cfg.S3PathStyle = pathStyle
	}

	if (cfg.S3AccessKeyID == "") != (cfg.S3SecretKey == "") {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}

	// Create the directory of the database file if it doesn't exist
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: c.LogLevel,
	}
	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
