package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesainslie/chartsweep/cmd/chartsweep/tui"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/output"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/table"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Report which charts of a difficulty table the library is missing",
	Long: `Load a difficulty table and look up every chart in the library by its
SHA-256 digest. Missing charts are listed with their download links and, when
a local folder has a similar name, up to three likely matches.

The URL may point at the table's HTML page, its header JSON, or its data JSON.`,
	Example: `  chartsweep check --url https://example.com/insane/table.html
  chartsweep check --url https://example.com/table.html --min-level 10 --max-level 15`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("url", "", "difficulty table URL (required)")
	checkCmd.Flags().Float64("min-level", 0, "skip charts below this level")
	checkCmd.Flags().Float64("max-level", 0, "skip charts above this level")
	_ = checkCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(checkCmd)
}

// levelRange builds the level filter from whichever bounds were given.
func levelRange(cmd *cobra.Command) table.LevelRange {
	var r table.LevelRange
	if cmd.Flags().Changed("min-level") {
		v, _ := cmd.Flags().GetFloat64("min-level")
		r.Min = &v
	}
	if cmd.Flags().Changed("max-level") {
		v, _ := cmd.Flags().GetFloat64("max-level")
		r.Max = &v
	}
	return r
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := resolveDir(dir)
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")
	levels := levelRange(cmd)
	if levels.Min != nil && levels.Max != nil && *levels.Min > *levels.Max {
		return fmt.Errorf("min-level %g is above max-level %g", *levels.Min, *levels.Max)
	}

	pools := tunedPools(cfg)
	store, closeStore := openHashCache(cfg)
	defer closeStore()

	ctx, cancel := signalContext()
	defer cancel()

	loader := table.NewLoader(time.Duration(cfg.Table.Timeout) * time.Second)

	var res table.Result
	err = withProgress(ctx, "check", root, func(ctx context.Context, tr *tui.Tracker) error {
		tr.SetStage("fetch")
		t, err := loader.Load(ctx, url)
		if err != nil {
			return err
		}
		printVerbose("Table %q: %d charts", t.Name, len(t.Charts))

		tr.SetStage("index")
		idx, err := index.Build(ctx, root, indexOptions(cfg, pools, store, tr))
		if err != nil {
			return err
		}
		res = table.Coverage(idx, t, levels)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printInfo("check cancelled")
			return nil
		}
		return fmt.Errorf("check failed: %w", err)
	}

	return render(cmd, cfg, &output.Result{
		Command:  "check",
		Coverage: &res,
		Extra:    map[string]string{"url": url},
	})
}
