package main

import (
	"fmt"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/output"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	Long: `View the journal of operations performed by chartsweep.

Every command that changes the library, or would change it under --dry-run,
records each move, merge, extraction and removal it made. The journal lives
outside the library and never influences later runs.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show the actions of a specific operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove entries older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest opens the configured journal.
func getManifest() (*manifest.Manifest, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.New(cfg.Journal.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return m, cfg, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	m, cfg, err := getManifest()
	if err != nil {
		return err
	}
	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if entries == nil {
		entries = []manifest.Entry{}
	}
	return render(cmd, cfg, &output.Result{Command: "history", History: entries})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, cfg, err := getManifest()
	if err != nil {
		return err
	}
	entry, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}
	return render(cmd, cfg, &output.Result{Command: "history show", DryRun: entry.DryRun, Entry: entry})
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	m, cfg, err := getManifest()
	if err != nil {
		return err
	}

	retentionDays := cfg.Journal.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}
	printInfo("Cleaning journal entries older than %d days...", retentionDays)

	removed, err := m.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d entries.", removed)
	return nil
}
