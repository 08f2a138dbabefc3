package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "hci0", cfg.Adapter)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.BatteryProvider)
	assert.Empty(t, cfg.EncryptionKey)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
adapter: hci1
scan_timeout: 30s
connect_timeout: 1m
encryption_key: a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6
battery_provider: false
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, 30*time.Second, cfg.ScanTimeout)
	assert.Equal(t, time.Minute, cfg.ConnectTimeout)
	assert.False(t, cfg.BatteryProvider)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	key, err := cfg.Key()
	require.NoError(t, err)
	assert.Len(t, key, 16)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "hci0", cfg.Adapter)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.True(t, cfg.BatteryProvider)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "adapter: [unclosed\n"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = LoadOrDefault(writeConfig(t, "adapter: hci2\n"))
	require.NoError(t, err)
	assert.Equal(t, "hci2", cfg.Adapter)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty adapter", func(c *Config) { c.Adapter = "" }},
		{"adapter path", func(c *Config) { c.Adapter = "/org/bluez/hci0" }},
		{"zero scan timeout", func(c *Config) { c.ScanTimeout = 0 }},
		{"negative connect timeout", func(c *Config) { c.ConnectTimeout = -time.Second }},
		{"non-hex key", func(c *Config) { c.EncryptionKey = "not-hex" }},
		{"short key", func(c *Config) { c.EncryptionKey = "a1b2c3" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestKeyUnset(t *testing.T) {
	key, err := Default().Key()
	assert.NoError(t, err)
	assert.Nil(t, key)
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/podcompanion/config.yaml", DefaultConfigPath())
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := Default()
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.SetupLogging())
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.SetupLogging())
}
