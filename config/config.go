// Package config holds crawler and server configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Placeholder values that must never be accepted as a service key.
var placeholderKeys = map[string]struct{}{
	"your-api-key-here":       {},
	"SECURE_API_KEY_REQUIRED": {},
	"null":                    {},
	"undefined":               {},
}

// Config holds all settings for the API client, crawler, and server.
type Config struct {
	ServiceKey string
	ListURL    string
	DetailURL  string

	Timeout         time.Duration
	NumRows         int
	MaxPages        int
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	Delay           time.Duration

	WindowDays      int
	TotalDays       int
	MaxRuntime      time.Duration
	DetailCacheSize int

	OutputDir   string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns the defaults the hosted service shipped with.
func DefaultConfig() *Config {
	return &Config{
		ListURL:         "http://apis.data.go.kr/1230000",
		DetailURL:       "https://shop.g2b.go.kr/gm/gms/gmsf/GdsDtlInfo/selectPdctAtrbInfo.do",
		Timeout:         30 * time.Second,
		NumRows:         100,
		MaxPages:        999,
		MaxRetries:      3,
		RetryBackoff:    750 * time.Millisecond,
		RetryBackoffMax: 10 * time.Second,
		Delay:           100 * time.Millisecond,
		WindowDays:      30,
		TotalDays:       365,
		MaxRuntime:      time.Hour,
		DetailCacheSize: 1024,
		OutputDir:       "output",
	}
}

// Validate ensures all configuration values are coherent. The service
// key is checked separately by client.New so that metadata-only tools
// can still surface a config_error instead of failing at startup.
func (c *Config) Validate() error {
	if c.ListURL == "" {
		return fmt.Errorf("list URL cannot be empty")
	}
	parsed, err := url.Parse(c.ListURL)
	if err != nil {
		return fmt.Errorf("invalid list URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("list URL must include a host")
	}
	if c.DetailURL == "" {
		return fmt.Errorf("detail URL cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.NumRows <= 0 {
		return fmt.Errorf("num rows must be positive")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("window days must be positive")
	}
	if c.TotalDays <= 0 {
		return fmt.Errorf("total days must be positive")
	}
	if c.DetailCacheSize <= 0 {
		return fmt.Errorf("detail cache size must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir cannot be empty")
	}
	return nil
}

// ValidateServiceKey reports whether the key is present and not one of
// the known placeholder values.
func ValidateServiceKey(key string) error {
	if key == "" {
		return fmt.Errorf("service key is required (set NARAMARKET_SERVICE_KEY)")
	}
	if _, bad := placeholderKeys[key]; bad {
		return fmt.Errorf("service key is a placeholder value")
	}
	return nil
}

// EnvString reads a string environment variable.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer environment variable.
func EnvInt(name string) (int, bool, error) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, true, nil
}
