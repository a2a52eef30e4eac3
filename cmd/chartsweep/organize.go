package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/chartsweep/cmd/chartsweep/tui"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/output"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/pipeline"
	"github.com/spf13/cobra"
)

var organizeCmd = &cobra.Command{
	Use:   "organize [dir]",
	Short: "Rename, merge and relocate chart folders",
	Long: `Run the full consolidation pass over a chart library:

  1. rename       name each folder "[Artist] Title" after its charts
  2. merge        fold duplicate folders into their closest match
  3. reconstruct  move every chart folder directly under the destination

Empty directories left behind are pruned. With --dry-run the whole pass runs
against a throwaway mirror of the library, so the report matches what a real
run would do.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, args, "organize", pipeline.AllStages)
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename [dir]",
	Short: `Rename chart folders to "[Artist] Title"`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, args, "rename", []pipeline.Stage{pipeline.StageRename})
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge [dir]",
	Short: "Merge duplicate chart folders",
	Long: `Find folders that share chart files and merge each into the folder it
overlaps most. A pair is merged only when the share of files in common reaches
--threshold percent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, args, "merge", []pipeline.Stage{pipeline.StageMerge})
	},
}

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [dir]",
	Short: "Relocate chart folders directly under the destination",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, args, "reconstruct", []pipeline.Stage{pipeline.StageReconstruct})
	},
}

func init() {
	for _, c := range []*cobra.Command{organizeCmd, reconstructCmd} {
		c.Flags().String("dest", "", "destination root (default: the library root)")
		c.Flags().Bool("shard", false, "bucket folders into two-hex-digit shards")
	}
	for _, c := range []*cobra.Command{organizeCmd, mergeCmd} {
		c.Flags().Int("threshold", config.DefaultThreshold, "minimum shared files in percent for a merge")
	}

	rootCmd.AddCommand(organizeCmd, renameCmd, mergeCmd, reconstructCmd)
}

// stageSettings are the per-command settings layered over the config.
type stageSettings struct {
	root      string
	dest      string
	shard     bool
	threshold int
}

func resolveStageSettings(cmd *cobra.Command, args []string, cfg *config.Config) (stageSettings, error) {
	dir := cfg.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := resolveDir(dir)
	if err != nil {
		return stageSettings{}, err
	}

	s := stageSettings{
		root:      root,
		shard:     flagOr(cmd, "shard", cfg.Shard, cmd.Flags().GetBool),
		threshold: flagOr(cmd, "threshold", cfg.Threshold, cmd.Flags().GetInt),
	}
	if s.threshold < 0 || s.threshold > 100 {
		return stageSettings{}, fmt.Errorf("threshold must be between 0 and 100, got %d", s.threshold)
	}

	if dest := flagOr(cmd, "dest", cfg.Dest, cmd.Flags().GetString); dest != "" {
		if s.dest, err = resolveDir(dest); err != nil {
			return stageSettings{}, err
		}
	}
	return s, nil
}

// runStages runs the pipeline with the given stages and prints the report.
func runStages(cmd *cobra.Command, args []string, command string, stages []pipeline.Stage) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := resolveStageSettings(cmd, args, cfg)
	if err != nil {
		return err
	}
	dryRun := getDryRun()
	pools := tunedPools(cfg)

	store, closeStore := openHashCache(cfg)
	defer closeStore()

	ctx, cancel := signalContext()
	defer cancel()

	j := openJournal(cfg, command, s.root, dryRun)
	defer j.commit()

	if dryRun {
		printInfo("Dry run: %s %s (nothing will be changed)", command, s.root)
	} else {
		printVerbose("Running %v on %s", stages, s.root)
	}

	var rep *pipeline.Report
	err = withProgress(ctx, command, s.root, func(ctx context.Context, tr *tui.Tracker) error {
		var runErr error
		rep, runErr = pipeline.Run(ctx, pipeline.Options{
			Root:         s.root,
			Dest:         s.dest,
			Stages:       stages,
			Shard:        s.shard,
			Threshold:    s.threshold,
			DryRun:       dryRun,
			Index:        indexOptions(cfg, pools, store, tr),
			ParseWorkers: pools.ParseWorkers,
			ListingCache: pools.ListingCache,
			Recorder:     j.recorder(),
			OnStage:      func(st pipeline.Stage) { tr.SetStage(string(st)) },
		})
		return runErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printInfo("%s cancelled", command)
			return nil
		}
		return fmt.Errorf("%s failed: %w", command, err)
	}

	return render(cmd, cfg, &output.Result{
		Command:  command,
		DryRun:   dryRun,
		Organize: rep,
	})
}
