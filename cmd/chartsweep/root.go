package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "chartsweep",
		Short: "Consolidate a BMS chart library",
		Long: `Chartsweep keeps a BMS chart library tidy: it renames folders after the
charts they hold, merges duplicate folders, relocates folders out of nested
packs, and installs new charts from archives.

Every command that changes the library accepts --dry-run, which reports the
exact decisions a real run would make without touching anything.

Examples:
  chartsweep organize --dir ~/bms            # Full consolidation pass
  chartsweep organize -d --dest ~/bms/sorted # Preview a relocation
  chartsweep check --url https://example.com/table.html
  chartsweep install --from ~/Downloads/new --recursive
  chartsweep history                         # View operation history`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/chartsweep/config.yaml)")
	rootCmd.PersistentFlags().String("dir", "", "library root (default: current directory)")
	rootCmd.PersistentFlags().BoolP("dry-run", "d", false, "report decisions without changing anything")
	rootCmd.PersistentFlags().Bool("json-log", false, "write console log lines as JSON")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "override worker count (0=auto)")
	rootCmd.PersistentFlags().StringSliceP("exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	rootCmd.PersistentFlags().StringP("format", "o", "", "report format: pretty, plain, json, yaml")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().Bool("cache", false, "reuse file digests from the hash cache")
	rootCmd.PersistentFlags().Bool("progress", false, "show a live progress view")

	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("json_log", rootCmd.PersistentFlags().Lookup("json-log"))
	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("exclude", rootCmd.PersistentFlags().Lookup("exclude"))
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("cache.enabled", rootCmd.PersistentFlags().Lookup("cache"))
	_ = viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	config.Configure(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig returns the effective configuration: defaults, file,
// environment and flags, in increasing precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		cfg.Dir = config.DefaultDir
	}
	return cfg, nil
}

// resolveDir expands and absolutizes a directory argument and checks that it
// exists.
func resolveDir(path string) (string, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path does not exist: %s", abs)
		}
		return "", fmt.Errorf("cannot access path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", abs)
	}
	return abs, nil
}

// resolveFile expands and absolutizes a file argument without checking it.
func resolveFile(path string) (string, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	return filepath.Abs(expanded)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			printInfo("\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func getDryRun() bool {
	return viper.GetBool("dry_run")
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr unless quiet mode is enabled. Reports
// go to stdout, so progress chatter never mixes into json or yaml output.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
