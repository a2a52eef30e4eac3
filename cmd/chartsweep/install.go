package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/chartsweep/cmd/chartsweep/tui"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/archive"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/output"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install charts from downloaded archives",
	Long: `Extract every .zip, .rar, .tar.xz and .txz archive found directly in the
staging folder given by --from, then merge the staging folder into the library
under a name taken from the archives.

With --recursive each immediate subdirectory of --from is installed as its own
chart folder. Extracted archives are deleted, or moved to the trash with
--trash. A corrupt archive leaves its staging folder untouched.`,
	Example: `  chartsweep install --from ~/Downloads/new-chart
  chartsweep install --from ~/Downloads/batch --recursive --trash`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().String("from", "", "staging folder holding the archives (required)")
	installCmd.Flags().String("dest", "", "library to install into (default: --dir)")
	installCmd.Flags().Bool("recursive", false, "install each subdirectory of --from separately")
	installCmd.Flags().Bool("trash", false, "move extracted archives to the trash instead of deleting them")
	_ = installCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fromFlag, _ := cmd.Flags().GetString("from")
	from, err := resolveDir(fromFlag)
	if err != nil {
		return err
	}

	destDir := flagOr(cmd, "dest", cfg.Dest, cmd.Flags().GetString)
	if destDir == "" {
		destDir = cfg.Dir
	}
	dest, err := resolveDir(destDir)
	if err != nil {
		return err
	}
	if transactor.IsWithin(dest, from) {
		return fmt.Errorf("library %s is inside the staging folder %s", dest, from)
	}

	recursive, _ := cmd.Flags().GetBool("recursive")
	useTrash, _ := cmd.Flags().GetBool("trash")
	dryRun := getDryRun()

	ctx, cancel := signalContext()
	defer cancel()

	j := openJournal(cfg, "install", dest, dryRun)
	defer j.commit()
	tx := transactor.New(dryRun, j.recorder())

	var rep archive.Report
	err = withProgress(ctx, "install", from, func(ctx context.Context, tr *tui.Tracker) error {
		tr.SetStage("extract")
		var installErr error
		rep, installErr = archive.Install(ctx, from, dest, archive.Options{
			Recursive: recursive,
			Trash:     useTrash,
		}, tx)
		return installErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printInfo("install cancelled")
			return nil
		}
		return fmt.Errorf("install failed: %w", err)
	}

	return render(cmd, cfg, &output.Result{
		Command: "install",
		DryRun:  dryRun,
		Install: &rep,
	})
}
