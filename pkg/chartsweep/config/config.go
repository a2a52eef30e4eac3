package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// appName names the XDG subdirectories and the environment prefix.
const appName = "chartsweep"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// CacheConfig configures the optional content-hash cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// JournalConfig configures the operation journal.
type JournalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// TableConfig configures difficulty table fetches.
type TableConfig struct {
	Timeout int `mapstructure:"timeout"`
}

// Config represents the application configuration.
type Config struct {
	Dir       string        `mapstructure:"dir"`
	Dest      string        `mapstructure:"dest"`
	Exclude   []string      `mapstructure:"exclude"`
	Workers   int           `mapstructure:"workers"`
	Threshold int           `mapstructure:"threshold"`
	Shard     bool          `mapstructure:"shard"`
	Format    string        `mapstructure:"format"`
	Lamp      string        `mapstructure:"lamp"`
	Cache     CacheConfig   `mapstructure:"cache"`
	Journal   JournalConfig `mapstructure:"journal"`
	Table     TableConfig   `mapstructure:"table"`
	Logging   LoggingConfig `mapstructure:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dir", DefaultDir)
	v.SetDefault("dest", "")
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("threshold", DefaultThreshold)
	v.SetDefault("shard", false)
	v.SetDefault("format", DefaultFormat)
	v.SetDefault("lamp", DefaultLamp)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", "")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("journal.retention_days", DefaultRetentionDays)
	v.SetDefault("table.timeout", DefaultTableTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"index":       "info",
		"merge":       "info",
		"rename":      "info",
		"reconstruct": "info",
		"transactor":  "info",
	})
}

// Configure points v at the standard config locations and environment.
// A .env file in the working directory is loaded into the process
// environment first; existing variables win.
func Configure(v *viper.Viper) {
	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, appName))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".config", appName))
	}

	v.SetEnvPrefix("CHARTSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/chartsweep/config.yaml
//   - $HOME/.config/chartsweep/config.yaml
//
// Environment variables are prefixed with CHARTSWEEP_ (e.g. CHARTSWEEP_THRESHOLD).
func Load() (*Config, error) {
	v := viper.New()
	Configure(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals v into a Config and expands ~ in path settings.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Dir, &cfg.Dest, &cfg.Cache.Path, &cfg.Journal.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalDir()
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCacheDir()
	}
	return &cfg, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// StateDir returns $XDG_STATE_HOME/chartsweep/ for logs and the journal.
func StateDir() string {
	return filepath.Join(xdg.StateHome, appName)
}

// CacheDir returns $XDG_CACHE_HOME/chartsweep/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, appName)
}

// DefaultJournalDir returns the default operation journal directory.
func DefaultJournalDir() string {
	return filepath.Join(StateDir(), "journal")
}

// DefaultCacheDir returns the default hash cache directory.
func DefaultCacheDir() string {
	return filepath.Join(CacheDir(), "hashes")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), appName+".log")
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	path, err := ConfigFile()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# chartsweep configuration

# Library root used when --dir is not given
dir: %s

# Destination root for organize/reconstruct (empty means the library root)
dest: ""

# Base-name glob patterns skipped while indexing
exclude:
  - System Volume Information

# Worker count for hashing and header parsing (0 = auto)
workers: %d

# Minimum folder similarity in percent for a duplicate merge
threshold: %d

# Bucket relocated folders into two-hex-digit shards
shard: false

# Report format: pretty, plain, json, yaml
format: %s

# Clear lamp for task/oldest: AEASY, EASY, NORMAL, HARD, EXHARD, FC, PERFECT
lamp: %s

# Content-hash cache (off by default; never affects decisions)
cache:
  enabled: false
  path: ""

# Journal of executed operations, shown by "chartsweep history"
journal:
  enabled: true
  path: ""
  retention_days: %d

table:
  timeout: %d   # seconds

logging:
  level: info
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
`, DefaultDir, DefaultWorkers, DefaultThreshold, DefaultFormat, DefaultLamp, DefaultRetentionDays, DefaultTableTimeout)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}
