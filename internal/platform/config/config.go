package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8000"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	SheetURL         string        `env:"SHEET_URL" default:"https://docs.google.com/spreadsheets/d/1OO7gDKXv4YJiDfpfrIHaXIa_XUgDhl3rG2FQImQ-ixY/export?format=csv&gid=0"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" default:"10s"`
	MaxRetries       int           `env:"MAX_RETRIES" default:"3"`
	RetryBackoffUnit time.Duration `env:"RETRY_BACKOFF_UNIT" default:"1s"`
	RateLimitBackoff time.Duration `env:"RATE_LIMIT_BACKOFF" default:"10s"`

	UpdateInterval     time.Duration `env:"UPDATE_INTERVAL" default:"30s"`
	StaleSweepInterval time.Duration `env:"STALE_SWEEP_INTERVAL" default:"5m"`
	ProbeTimeout       time.Duration `env:"PROBE_TIMEOUT" default:"5s"`
	SendTimeout        time.Duration `env:"SEND_TIMEOUT" default:"5s"`

	MaxConnections int     `env:"MAX_CONNECTIONS" default:"100"`
	WSConnectRate  float64 `env:"WS_CONNECT_RATE" default:"10"`
	WSConnectBurst int     `env:"WS_CONNECT_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether development-only relaxations apply.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv != "production"
}

func validate(cfg *Config) error {
	if cfg.SheetURL == "" {
		return errors.New("SHEET_URL is required")
	}
	u, err := url.Parse(cfg.SheetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SHEET_URL must be an absolute http(s) URL, got %q", cfg.SheetURL)
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %q", cfg.Port)
	}

	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of %v, got %q", validLogLevels, cfg.LogLevel)
	}

	if cfg.MaxConnections < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be at least 1, got %d", cfg.MaxConnections)
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", cfg.MaxRetries)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"REQUEST_TIMEOUT", cfg.RequestTimeout},
		{"RETRY_BACKOFF_UNIT", cfg.RetryBackoffUnit},
		{"RATE_LIMIT_BACKOFF", cfg.RateLimitBackoff},
		{"UPDATE_INTERVAL", cfg.UpdateInterval},
		{"STALE_SWEEP_INTERVAL", cfg.StaleSweepInterval},
		{"PROBE_TIMEOUT", cfg.ProbeTimeout},
		{"SEND_TIMEOUT", cfg.SendTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if cfg.WSConnectRate <= 0 || cfg.WSConnectBurst < 1 {
		return errors.New("WS_CONNECT_RATE and WS_CONNECT_BURST must be positive")
	}

	return nil
}
