package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage chartsweep configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/chartsweep/config.yaml (if set)
  2. ~/.config/chartsweep/config.yaml

Environment variables override config file settings using the CHARTSWEEP_
prefix. A .env file in the working directory is read first:
  CHARTSWEEP_DIR=~/bms
  CHARTSWEEP_THRESHOLD=90
  CHARTSWEEP_CACHE_ENABLED=true`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

// runtimeKeys are flag-only settings left out of "config show".
var runtimeKeys = []string{"dry_run", "json_log", "quiet", "verbose", "progress"}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// effectiveSettings returns every configured key with runtime flags removed.
func effectiveSettings(v *viper.Viper) map[string]any {
	settings := v.AllSettings()
	for _, k := range runtimeKeys {
		delete(settings, k)
	}
	return settings
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fmt.Fprintf(out, "# config file: %s\n", configFile)
		}
	}
	for _, e := range envOverrides() {
		fmt.Fprintf(out, "# env: %s\n", e)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(effectiveSettings(viper.GetViper())); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// envOverrides lists the CHARTSWEEP_ variables set in the environment.
func envOverrides() []string {
	var out []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "CHARTSWEEP_") {
			out = append(out, kv)
		}
	}
	sort.Strings(out)
	return out
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'chartsweep config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", configPath)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	configPath, err := config.ConfigFile()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
