package main

import (
	"os"
	"testing"

	"github.com/adrg/xdg"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/spf13/viper"
)

func TestParseRotationConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    config.RotationConfig
		expected logging.RotationConfig
	}{
		{
			name: "default values",
			input: config.RotationConfig{
				MaxSize:    "10MB",
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
		},
		{
			name: "custom size in gigabytes",
			input: config.RotationConfig{
				MaxSize:    "1G",
				MaxAge:     7,
				MaxBackups: 3,
			},
			expected: logging.RotationConfig{
				MaxSize:    1024 * 1024 * 1024,
				MaxAge:     7,
				MaxBackups: 3,
			},
		},
		{
			name: "empty max_size uses default",
			input: config.RotationConfig{
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
		},
		{
			name: "invalid max_size uses default",
			input: config.RotationConfig{
				MaxSize:    "invalid",
				MaxAge:     21,
				MaxBackups: 4,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     21,
				MaxBackups: 4,
			},
		},
		{
			name:     "zero size uses default",
			input:    config.RotationConfig{MaxSize: "0"},
			expected: logging.RotationConfig{MaxSize: 10 * 1024 * 1024},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRotationConfig(tt.input)
			if result != tt.expected {
				t.Errorf("parseRotationConfig() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

// isolateXDG points every XDG base directory at a fresh temp dir. xdg
// caches the environment, so it is reloaded now and again after the
// variables are restored.
func isolateXDG(t *testing.T) {
	t.Helper()
	t.Cleanup(xdg.Reload)
	for _, name := range []string{"XDG_CONFIG_HOME", "XDG_STATE_HOME", "XDG_CACHE_HOME", "XDG_DATA_HOME"} {
		t.Setenv(name, t.TempDir())
	}
	xdg.Reload()
}

func TestInitializeLoggingEnsuresDirectories(t *testing.T) {
	isolateXDG(t)

	if err := initializeLogging(nil, nil); err != nil {
		t.Fatalf("initializeLogging() returned error: %v", err)
	}
	defer func() { _ = logging.Close() }()

	configDir, err := config.ConfigDir()
	if err != nil {
		t.Fatalf("failed to get config dir: %v", err)
	}
	for _, dir := range []string{configDir, config.StateDir(), config.CacheDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("directory was not created: %s", dir)
		}
	}
}

func TestLoggingConfigConsoleFlags(t *testing.T) {
	tests := []struct {
		name        string
		set         map[string]any
		buffered    bool
		wantConsole string
		wantJSON    bool
	}{
		{name: "default", wantConsole: "warn"},
		{name: "verbose", set: map[string]any{"verbose": true}, wantConsole: "debug"},
		{name: "quiet wins over verbose", set: map[string]any{"verbose": true, "quiet": true}, wantConsole: ""},
		{name: "json", set: map[string]any{"json_log": true}, wantConsole: "warn", wantJSON: true},
		{name: "buffered", buffered: true, wantConsole: "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			config.SetDefaults(v)
			for key, val := range tt.set {
				v.Set(key, val)
			}

			lc := loggingConfig(v, tt.buffered)
			if lc.ConsoleLevel != tt.wantConsole {
				t.Errorf("ConsoleLevel = %q, want %q", lc.ConsoleLevel, tt.wantConsole)
			}
			if lc.ConsoleJSON != tt.wantJSON {
				t.Errorf("ConsoleJSON = %v, want %v", lc.ConsoleJSON, tt.wantJSON)
			}
			if lc.Buffered != tt.buffered {
				t.Errorf("Buffered = %v, want %v", lc.Buffered, tt.buffered)
			}
			if lc.Components["merge"] != "info" {
				t.Errorf("expected component levels from config, got %v", lc.Components)
			}
		})
	}
}
