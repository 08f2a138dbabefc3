// Package config loads the podcompanion configuration file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Adapter is the BlueZ controller name, e.g. "hci0".
	Adapter        string        `yaml:"adapter"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// EncryptionKey is the accessory's proximity ENC_KEY as 32 hex
	// characters. Optional; enables 1% battery accuracy.
	EncryptionKey   string `yaml:"encryption_key"`
	BatteryProvider bool   `yaml:"battery_provider"`
	LogLevel        string `yaml:"log_level"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "podcompanion")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Adapter:         "hci0",
		ScanTimeout:     10 * time.Second,
		ConnectTimeout:  15 * time.Second,
		BatteryProvider: true,
		LogLevel:        "info",
	}
}

// Load reads and parses a YAML config file. Missing fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}
	if strings.ContainsAny(c.Adapter, "/ ") {
		return fmt.Errorf("adapter must be a controller name like \"hci0\", got %q", c.Adapter)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be > 0")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0")
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Key decodes EncryptionKey. It returns nil when no key is configured.
func (c *Config) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key must be hex: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("encryption_key must be 16 bytes (32 hex characters), got %d bytes", len(key))
	}
	return key, nil
}

// ParseLogLevel converts a log level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", level)
	}
}

// SetupLogging installs a text slog handler on stderr at the configured
// level as the default logger.
func (c *Config) SetupLogging() error {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
