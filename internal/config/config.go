// Package config loads client and stub settings from the environment.
// An optional .env file in the working directory is read first; variables
// already present in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Progress delivery modes.
const (
	ModeStream = "stream"
	ModePoll   = "poll"
)

// Config holds all configuration for talking to the generation service.
type Config struct {
	// APIBaseURL is where requests are sent.
	APIBaseURL string
	// ResultBaseURL is prefixed to relative image paths returned by the service.
	ResultBaseURL string

	// Mode selects streaming or polling progress delivery.
	Mode string

	PollInterval   time.Duration
	RequestTimeout time.Duration
	LoraCacheTTL   time.Duration

	// MetricsFile, when set, receives one JSON metrics line per generation.
	MetricsFile string

	LogLevel string
}

// Load reads configuration from environment variables, after loading .env
// if present.
func Load() *Config {
	LoadDotEnv()
	return FromEnv()
}

// LoadDotEnv loads .env from the working directory into the environment. A
// missing file is not an error; an unreadable one is logged.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}
}

// NormalizeMode folds a mode name from a flag or the environment.
func NormalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

// FromEnv reads configuration from environment variables only.
func FromEnv() *Config {
	apiURL := getEnv("IMAGEGEN_API_URL", "http://localhost:5000")
	return &Config{
		APIBaseURL:     apiURL,
		ResultBaseURL:  getEnv("IMAGEGEN_RESULT_BASE_URL", apiURL),
		Mode:           NormalizeMode(getEnv("IMAGEGEN_MODE", ModeStream)),
		PollInterval:   getDurationEnv("IMAGEGEN_POLL_INTERVAL", time.Second),
		RequestTimeout: getDurationEnv("IMAGEGEN_REQUEST_TIMEOUT", 30*time.Second),
		LoraCacheTTL:   getDurationEnv("IMAGEGEN_LORA_CACHE_TTL", 5*time.Minute),
		MetricsFile:    os.Getenv("IMAGEGEN_METRICS_FILE"),
		LogLevel:       getEnv("IMAGEGEN_LOG_LEVEL", "info"),
	}
}

// Validate checks that URLs parse and the mode is known.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"API base URL":    c.APIBaseURL,
		"result base URL": c.ResultBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q: scheme and host are required", name, raw)
		}
	}
	if c.Mode != ModeStream && c.Mode != ModePoll {
		return fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, ModeStream, ModePoll)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("1500ms") or bare milliseconds ("1500").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Warn().Str("key", key).Str("value", value).Msg("Ignoring unparseable duration")
	return defaultValue
}
