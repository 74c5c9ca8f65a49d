package config

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"IMAGEGEN_API_URL", "IMAGEGEN_RESULT_BASE_URL", "IMAGEGEN_MODE",
		"IMAGEGEN_POLL_INTERVAL", "IMAGEGEN_REQUEST_TIMEOUT", "IMAGEGEN_LORA_CACHE_TTL",
		"IMAGEGEN_METRICS_FILE",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.APIBaseURL != "http://localhost:5000" {
		t.Errorf("unexpected API URL %q", cfg.APIBaseURL)
	}
	if cfg.ResultBaseURL != cfg.APIBaseURL {
		t.Errorf("expected result base to default to API URL, got %q", cfg.ResultBaseURL)
	}
	if cfg.Mode != ModeStream {
		t.Errorf("expected stream mode, got %q", cfg.Mode)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("expected 1s poll interval, got %s", cfg.PollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("IMAGEGEN_API_URL", "http://gpu-box:5000")
	t.Setenv("IMAGEGEN_RESULT_BASE_URL", "http://cdn.local/")
	t.Setenv("IMAGEGEN_MODE", "POLL")
	t.Setenv("IMAGEGEN_POLL_INTERVAL", "250")
	t.Setenv("IMAGEGEN_REQUEST_TIMEOUT", "5s")

	cfg := FromEnv()
	if cfg.ResultBaseURL != "http://cdn.local/" {
		t.Errorf("unexpected result base %q", cfg.ResultBaseURL)
	}
	if cfg.Mode != ModePoll {
		t.Errorf("expected poll mode, got %q", cfg.Mode)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("expected bare milliseconds to parse, got %s", cfg.PollInterval)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.RequestTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			APIBaseURL:    "http://localhost:5000",
			ResultBaseURL: "http://localhost:5000",
			Mode:          ModeStream,
			PollInterval:  time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative api url", func(c *Config) { c.APIBaseURL = "/api" }},
		{"bad result url", func(c *Config) { c.ResultBaseURL = "://nope" }},
		{"unknown mode", func(c *Config) { c.Mode = "websocket" }},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNormalizeMode(t *testing.T) {
	tests := map[string]string{
		"POLL":      ModePoll,
		" Stream ":  ModeStream,
		"poll":      ModePoll,
		"websocket": "websocket",
	}
	for in, want := range tests {
		if got := NormalizeMode(in); got != want {
			t.Errorf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	t.Chdir(t.TempDir())
	LoadDotEnv()
	if buf.Len() != 0 {
		t.Errorf("missing .env should be silent, got %s", buf.String())
	}

	t.Setenv("IMAGEGEN_DOTENV_TEST", "")
	os.Unsetenv("IMAGEGEN_DOTENV_TEST")
	if err := os.WriteFile(".env", []byte("IMAGEGEN_DOTENV_TEST=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	LoadDotEnv()
	if got := os.Getenv("IMAGEGEN_DOTENV_TEST"); got != "loaded" {
		t.Errorf("expected .env value, got %q", got)
	}

	if err := os.Remove(".env"); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(".env", 0o700); err != nil {
		t.Fatal(err)
	}
	LoadDotEnv()
	if !strings.Contains(buf.String(), "Failed to read .env file") {
		t.Errorf("expected a warning for an unreadable .env, got %q", buf.String())
	}
}
