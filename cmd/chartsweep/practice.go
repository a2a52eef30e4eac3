package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/output"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/scoredb"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/table"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Append today's practice folder to a default table",
	Long: `Build a practice folder from the charts of a difficulty table that are not
yet cleared at --lamp, easiest and least played first, and append it to the
player's default table JSON. Charts are added until the folder holds --notes
notes; the last chart may take it past the budget.

Scores come from the player's score.db and note counts from songdata.db, both
opened read-only.`,
	Example: `  chartsweep task --url https://example.com/table.html \
    --score player/score.db --song songdata.db \
    --table table/default.json --lamp HARD --min-level 5 --notes 10000`,
	Args: cobra.NoArgs,
	RunE: runTask,
}

var oldestCmd = &cobra.Command{
	Use:   "oldest",
	Short: "Append a folder of the least recently played charts to a table",
	Long: `Collect the charts whose clear is below --lamp, least recently played
first, and append them as one folder to a table JSON file. Each entry is titled
with the days since it was last played. A missing table file is created.`,
	Example: `  chartsweep oldest --score player/score.db --table table/oldest.json --lamp EXHARD
  chartsweep oldest --score player/score.db --table table/oldest.json --reset`,
	Args: cobra.NoArgs,
	RunE: runOldest,
}

func init() {
	taskCmd.Flags().String("url", "", "difficulty table URL (required)")
	taskCmd.Flags().String("score", "", "player score.db (required)")
	taskCmd.Flags().String("song", "", "songdata.db (required)")
	taskCmd.Flags().String("table", "", "default table JSON to append to (required)")
	taskCmd.Flags().String("lamp", config.DefaultLamp, "target clear lamp: AEASY, EASY, NORMAL, HARD, EXHARD, FC, PERFECT")
	taskCmd.Flags().Float64("min-level", 0, "skip charts below this level")
	taskCmd.Flags().Int("notes", 0, "note budget for the folder (required)")
	for _, name := range []string{"url", "score", "song", "table", "notes"} {
		_ = taskCmd.MarkFlagRequired(name)
	}

	oldestCmd.Flags().String("score", "", "player score.db (required)")
	oldestCmd.Flags().String("table", "", "table JSON to append to (required)")
	oldestCmd.Flags().String("lamp", config.DefaultLamp, "target clear lamp: AEASY, EASY, NORMAL, HARD, EXHARD, FC, PERFECT")
	oldestCmd.Flags().Int("limit", scoredb.OldestLimit, "number of charts in the folder")
	oldestCmd.Flags().BoolP("reset", "r", false, "drop the folders already in the table first")
	for _, name := range []string{"score", "table"} {
		_ = oldestCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(taskCmd, oldestCmd)
}

// fileFlags resolves the named path flags in order.
func fileFlags(cmd *cobra.Command, names ...string) ([]string, error) {
	paths := make([]string, 0, len(names))
	for _, name := range names {
		v, _ := cmd.Flags().GetString(name)
		p, err := resolveFile(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func lampFlag(cmd *cobra.Command, cfg *config.Config) (scoredb.Lamp, error) {
	name := flagOr(cmd, "lamp", cfg.Lamp, cmd.Flags().GetString)
	return scoredb.ParseLamp(strings.TrimSpace(name))
}

func runTask(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := fileFlags(cmd, "score", "song", "table")
	if err != nil {
		return err
	}
	scorePath, songPath, tablePath := paths[0], paths[1], paths[2]

	lamp, err := lampFlag(cmd, cfg)
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")
	minLevel, _ := cmd.Flags().GetFloat64("min-level")
	notes, _ := cmd.Flags().GetInt("notes")
	if notes <= 0 {
		return fmt.Errorf("--notes must be positive, got %d", notes)
	}
	dryRun := getDryRun()

	ctx, cancel := signalContext()
	defer cancel()

	t, err := table.NewLoader(time.Duration(cfg.Table.Timeout)*time.Second).Load(ctx, url)
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}
	printVerbose("Table %q: %d charts", t.Name, len(t.Charts))

	db, err := scoredb.Open(scorePath, songPath)
	if err != nil {
		return fmt.Errorf("task failed: %w", err)
	}
	defer db.Close()

	rep, err := db.Task(ctx, t.Charts, scoredb.TaskOptions{
		Lamp:     lamp,
		MinLevel: minLevel,
		Notes:    notes,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printInfo("task cancelled")
			return nil
		}
		return fmt.Errorf("task failed: %w", err)
	}

	j := openJournal(cfg, "task", tablePath, dryRun)
	defer j.commit()
	tx := transactor.New(dryRun, j.recorder())
	if _, err := scoredb.AppendFolder(tablePath, rep.Folder, scoredb.AppendOptions{}, tx); err != nil {
		return fmt.Errorf("task failed: %w", err)
	}

	return render(cmd, cfg, &output.Result{
		Command: "task",
		DryRun:  dryRun,
		Practice: &output.Practice{
			Table:      tablePath,
			Folder:     rep.Folder,
			Notes:      rep.Notes,
			Candidates: rep.Candidates,
			Skipped:    rep.Skipped,
		},
		Extra: map[string]string{"table_name": t.Name},
	})
}

func runOldest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := fileFlags(cmd, "score", "table")
	if err != nil {
		return err
	}
	scorePath, tablePath := paths[0], paths[1]

	lamp, err := lampFlag(cmd, cfg)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	reset, _ := cmd.Flags().GetBool("reset")
	dryRun := getDryRun()

	ctx, cancel := signalContext()
	defer cancel()

	db, err := scoredb.Open(scorePath, "")
	if err != nil {
		return fmt.Errorf("oldest failed: %w", err)
	}
	defer db.Close()

	folder, err := db.Oldest(ctx, lamp, limit, time.Now())
	if err != nil {
		return fmt.Errorf("oldest failed: %w", err)
	}

	j := openJournal(cfg, "oldest", tablePath, dryRun)
	defer j.commit()
	tx := transactor.New(dryRun, j.recorder())
	opts := scoredb.AppendOptions{CreateName: scoredb.OldestTableName, Reset: reset}
	if _, err := scoredb.AppendFolder(tablePath, folder, opts, tx); err != nil {
		return fmt.Errorf("oldest failed: %w", err)
	}

	return render(cmd, cfg, &output.Result{
		Command:  "oldest",
		DryRun:   dryRun,
		Practice: &output.Practice{Table: tablePath, Folder: folder},
	})
}
