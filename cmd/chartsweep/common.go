package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jamesainslie/chartsweep/cmd/chartsweep/tui"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/hashcache"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/output"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/tuner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// render formats r with the configured formatter and prints it to stdout.
func render(cmd *cobra.Command, cfg *config.Config, r *output.Result) error {
	format := cfg.Format
	if format == "" {
		format = config.DefaultFormat
	}
	formatter, err := output.Get(format)
	if err != nil {
		return fmt.Errorf("unknown output format %q: available formats are %v", format, output.Available())
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), buf.String())
	return nil
}

// journal is one command's operation journal session. A disabled or
// unavailable journal records nothing.
type journal struct {
	session *manifest.Session
}

func openJournal(cfg *config.Config, command, root string, dryRun bool) *journal {
	if !cfg.Journal.Enabled {
		return &journal{}
	}
	m, err := manifest.New(cfg.Journal.Path)
	if err != nil {
		logging.Get("journal").Warn("journal unavailable", "path", cfg.Journal.Path, "err", err)
		return &journal{}
	}
	return &journal{session: m.Begin(command, root, dryRun)}
}

// recorder returns the session as a Recorder, or nil when disabled.
func (j *journal) recorder() manifest.Recorder {
	if j.session == nil {
		return nil
	}
	return j.session
}

// commit writes the session. Failures are logged, never returned.
func (j *journal) commit() {
	if j.session == nil {
		return
	}
	entry, err := j.session.Commit()
	if err != nil {
		logging.Get("journal").Warn("cannot write journal entry", "err", err)
		return
	}
	printVerbose("Journal entry %s (%d actions)", entry.ID, entry.Summary.Actions)
}

// openHashCache opens the digest cache when enabled. The returned close
// function is always safe to call.
func openHashCache(cfg *config.Config) (*hashcache.Store, func()) {
	if !cfg.Cache.Enabled {
		return nil, func() {}
	}
	store, err := hashcache.Open(cfg.Cache.Path)
	if err != nil {
		logging.Get("hashcache").Warn("hash cache unavailable, hashing everything", "path", cfg.Cache.Path, "err", err)
		return nil, func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logging.Get("hashcache").Warn("closing hash cache", "err", err)
		}
	}
}

// indexOptions builds index options from the config and tuned pools.
func indexOptions(cfg *config.Config, pools tuner.Pools, store *hashcache.Store, tr *tui.Tracker) index.Options {
	opts := index.Options{
		Exclude:     cfg.Exclude,
		WalkWorkers: pools.WalkWorkers,
		HashWorkers: pools.HashWorkers,
		OnProgress:  tr.SetIndex,
	}
	if store != nil {
		opts.Cache = store
	}
	return opts
}

// tunedPools sizes the worker pools for this machine.
func tunedPools(cfg *config.Config) tuner.Pools {
	pools := tuner.Auto(cfg.Workers)
	printVerbose("Pools: %d walkers, %d hashers, %d parsers, listing cache %d",
		pools.WalkWorkers, pools.HashWorkers, pools.ParseWorkers, pools.ListingCache)
	return pools
}

// withProgress runs work under the progress view when --progress is set, or
// directly otherwise.
func withProgress(ctx context.Context, title, root string, work tui.WorkFunc) error {
	if !viper.GetBool("progress") || getQuiet() {
		return work(ctx, &tui.Tracker{})
	}
	if err := initTUILogging(); err != nil {
		return fmt.Errorf("failed to initialize TUI logging: %w", err)
	}
	return tui.Run(ctx, tui.Options{Title: title, Root: root}, work)
}

// flagOr returns the command's flag value when it was set explicitly, or
// fallback otherwise.
func flagOr[T any](cmd *cobra.Command, name string, fallback T, get func(string) (T, error)) T {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return fallback
	}
	v, err := get(name)
	if err != nil {
		return fallback
	}
	return v
}
