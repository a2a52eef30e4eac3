package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultMaxLogSize applies when logging.rotation.max_size is empty or
// unparseable.
const defaultMaxLogSize = 10 * types.MiB

// initializeLogging is the root PersistentPreRunE. It creates the XDG
// directories the tool writes to and starts file and console logging.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if err := ensureDirectories(); err != nil {
		return err
	}
	return logging.Init(loggingConfig(viper.GetViper(), false))
}

// initTUILogging re-initializes logging for the progress view: the console
// sink is replaced by the ring buffer the view reads from.
func initTUILogging() error {
	return logging.Init(loggingConfig(viper.GetViper(), true))
}

func ensureDirectories() error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to resolve config dir: %w", err)
	}
	for _, dir := range []string{configDir, config.StateDir(), config.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// loggingConfig builds the logging configuration from v and the console
// flags. A config that fails to load falls back to defaults so the failure
// itself can still be logged by the command.
func loggingConfig(v *viper.Viper, buffered bool) logging.Config {
	lc := logging.DefaultConfig()
	if cfg, err := config.FromViper(v); err == nil {
		if cfg.Logging.Level != "" {
			lc.Level = cfg.Logging.Level
		}
		if cfg.Logging.Path != "" {
			lc.Path = cfg.Logging.Path
		}
		lc.Rotation = parseRotationConfig(cfg.Logging.Rotation)
		lc.Components = cfg.Logging.Components
	}

	switch {
	case v.GetBool("quiet"):
		lc.ConsoleLevel = ""
	case v.GetBool("verbose"):
		lc.ConsoleLevel = "debug"
	}
	lc.ConsoleJSON = v.GetBool("json_log")
	lc.Buffered = buffered
	return lc
}

// parseRotationConfig converts the file form of the rotation settings.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	maxSize, err := types.ParseSize(rc.MaxSize)
	if err != nil || maxSize <= 0 {
		maxSize = defaultMaxLogSize
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}
