// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/assetops/tagledger/internal/domain"
)

// Config holds all configuration values for the ledger API server.
// Values are populated by Load from environment variables. The ledger core
// itself reads no environment — these values are passed down as explicit
// parameters to the service operations.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// DefaultPrefix is the tag prefix used when a request does not name one.
	// Required; validated with the same rules as any request prefix.
	DefaultPrefix string

	// Padding is the zero-padding width for tag numbers. Defaults to 4.
	Padding int

	// StaleAfter is the age threshold after which an unconfirmed reservation
	// is considered stale. Defaults to 72h.
	StaleAfter time.Duration
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or the
// first value that fails validation.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.DefaultPrefix = os.Getenv("DEFAULT_TAG_PREFIX")
	if cfg.DefaultPrefix == "" {
		missing = append(missing, "DEFAULT_TAG_PREFIX")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	if err := domain.ValidatePrefix(cfg.DefaultPrefix); err != nil {
		return Config{}, fmt.Errorf("DEFAULT_TAG_PREFIX: %w", err)
	}

	padding, err := strconv.Atoi(getEnv("TAG_NUMBER_PADDING", "4"))
	if err != nil {
		return Config{}, fmt.Errorf("TAG_NUMBER_PADDING: %w", err)
	}
	if err := domain.ValidatePadding(padding); err != nil {
		return Config{}, fmt.Errorf("TAG_NUMBER_PADDING: %w", err)
	}
	cfg.Padding = padding

	staleAfter, err := time.ParseDuration(getEnv("STALE_AFTER", "72h"))
	if err != nil {
		return Config{}, fmt.Errorf("STALE_AFTER: %w", err)
	}
	if staleAfter <= 0 {
		return Config{}, fmt.Errorf("STALE_AFTER: must be positive, got %s", staleAfter)
	}
	cfg.StaleAfter = staleAfter

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
