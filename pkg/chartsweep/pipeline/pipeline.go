// Package pipeline runs the consolidation stages over a chart library:
// rename folders, merge duplicates, relocate survivors, prune empties. Each
// stage reads a freshly built index because the stage before it moved files.
//
// A dry run executes the same stages inside a sandbox mirror of the library
// and reports the decisions in terms of the real tree, so a dry run and a
// real run decide identically.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/merge"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/naming"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/reconstruct"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/sandbox"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// Stage names one pipeline step.
type Stage string

// Stages in execution order.
const (
	StageRename      Stage = "rename"
	StageMerge       Stage = "merge"
	StageReconstruct Stage = "reconstruct"
)

// AllStages is the full organize pass.
var AllStages = []Stage{StageRename, StageMerge, StageReconstruct}

// Options configures Run.
type Options struct {
	// Root is the library to consolidate.
	Root string

	// Dest is the reconstruct destination. Empty means Root.
	Dest string

	// Stages to run. Empty runs AllStages. Order is always rename, merge,
	// reconstruct regardless of the order given.
	Stages []Stage

	Shard bool

	// Threshold is the merge similarity in percent, passed to the merge
	// resolver as given: zero merges every linked pair.
	Threshold int

	DryRun bool

	// Index configures every index build. In dry-run mode its cache is
	// ignored and the sandbox's own links are followed.
	Index index.Options

	// ParseWorkers bounds header parsing during rename.
	ParseWorkers int

	// ListingCache bounds the merge resolver's folder listing cache.
	ListingCache int

	// Recorder receives every filesystem action, with real paths.
	Recorder manifest.Recorder

	// OnStage is called as each stage starts.
	OnStage func(Stage)
}

// MergeReport is the outcome of the merge stage.
type MergeReport struct {
	Resolved merge.Result      `json:"resolved"`
	Merged   []types.MergePair `json:"merged"`
	Failures []types.Failure   `json:"failures,omitempty"`
}

// Report is the outcome of Run.
type Report struct {
	Root        string              `json:"root"`
	Dest        string              `json:"dest"`
	DryRun      bool                `json:"dry_run"`
	Stages      []Stage             `json:"stages"`
	Rename      *naming.Report      `json:"rename,omitempty"`
	Merge       *MergeReport        `json:"merge,omitempty"`
	Reconstruct *reconstruct.Report `json:"reconstruct,omitempty"`
	Pruned      int                 `json:"pruned"`
	ScanErrors  []types.ScanError   `json:"scan_errors,omitempty"`
	Elapsed     time.Duration       `json:"elapsed"`
}

// Changes returns the number of renames, merges and relocations made.
func (r *Report) Changes() int {
	n := 0
	if r.Rename != nil {
		n += len(r.Rename.Renames)
	}
	if r.Merge != nil {
		n += len(r.Merge.Merged)
	}
	if r.Reconstruct != nil {
		n += len(r.Reconstruct.Moves)
	}
	return n
}

// Failed returns the number of per-folder failures across all stages.
func (r *Report) Failed() int {
	n := 0
	if r.Rename != nil {
		n += len(r.Rename.Failures)
	}
	if r.Merge != nil {
		n += len(r.Merge.Failures)
	}
	if r.Reconstruct != nil {
		n += len(r.Reconstruct.Failures)
	}
	return n
}

// Run executes the selected stages. Per-folder failures are collected in the
// report; the returned error is reserved for an unreadable root, a sandbox
// that cannot be built, or cancellation.
func Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	log := logging.Get("pipeline")

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, types.E(types.KindScan, "organize", opts.Root, err)
	}
	dest := root
	if opts.Dest != "" {
		if dest, err = filepath.Abs(opts.Dest); err != nil {
			return nil, types.E(types.KindDirectory, "organize", opts.Dest, err)
		}
	}

	rep := &Report{Root: root, Dest: dest, DryRun: opts.DryRun, Stages: normalize(opts.Stages)}

	workRoot, workDest := root, dest
	idxOpts := opts.Index
	rec := opts.Recorder
	var sb *sandbox.Sandbox

	if opts.DryRun {
		sb, err = sandbox.New(idxOpts.WalkWorkers)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := sb.Close(); err != nil {
				log.Warn("cannot remove sandbox", "err", err)
			}
		}()

		if workRoot, workDest, err = mountAll(ctx, sb, root, dest); err != nil {
			return nil, fmt.Errorf("building dry-run sandbox: %w", err)
		}
		idxOpts.Cache = nil
		idxOpts.FollowLink = sb.IsMirrorLink
		if rec != nil {
			rec = &realPaths{sb: sb, next: rec}
		}
		log.Info("dry run in sandbox", "root", root, "mirror", workRoot)
	}

	// The sandbox already isolates a dry run, so stages always mutate.
	tx := transactor.New(false, rec)

	scanErrors := make(map[string]types.ScanError)
	buildIndex := func() (*index.Index, error) {
		idx, err := index.Build(ctx, workRoot, idxOpts)
		if err != nil {
			return nil, err
		}
		for _, e := range idx.Errors() {
			scanErrors[e.Path] = e
		}
		return idx, nil
	}

	for _, stage := range rep.Stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.OnStage != nil {
			opts.OnStage(stage)
		}
		log.Info("stage started", "stage", stage)

		idx, err := buildIndex()
		if err != nil {
			return nil, err
		}

		switch stage {
		case StageRename:
			r, err := naming.NewResolver(opts.ParseWorkers).Apply(ctx, idx, tx)
			if err != nil {
				return nil, err
			}
			rep.Rename = &r

		case StageMerge:
			rep.Merge = applyMerges(idx, tx, opts)

		case StageReconstruct:
			r, err := reconstruct.Apply(ctx, idx, workDest, opts.Shard, tx)
			if err != nil {
				return nil, err
			}
			rep.Reconstruct = &r
			rep.Pruned += r.Pruned
		}
	}

	if rep.Reconstruct == nil {
		n, err := tx.PruneEmpty(workRoot)
		if err != nil {
			log.Warn("prune failed", "root", workRoot, "err", err)
		}
		rep.Pruned += n
	}

	for _, e := range scanErrors {
		rep.ScanErrors = append(rep.ScanErrors, e)
	}
	sortScanErrors(rep.ScanErrors)

	if sb != nil {
		rep.translate(sb.Real)
	}
	rep.Elapsed = time.Since(start)

	log.Info("pipeline finished",
		"stages", len(rep.Stages),
		"changes", rep.Changes(),
		"failed", rep.Failed(),
		"dry_run", opts.DryRun,
		"elapsed", rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

func applyMerges(idx *index.Index, tx *transactor.Transactor, opts Options) *MergeReport {
	log := logging.Get("pipeline")
	res := merge.NewResolver(opts.Threshold, opts.ListingCache).Resolve(idx)

	mr := &MergeReport{Resolved: res}
	for _, p := range res.Pairs {
		if p.Source == p.Target {
			continue
		}
		if err := tx.MergeInto(p.Source, p.Target); err != nil {
			log.Error("merge failed", "source", p.Source, "target", p.Target, "err", err)
			mr.Failures = append(mr.Failures, types.NewFailure(p.Source, err))
			continue
		}
		mr.Merged = append(mr.Merged, p)
	}
	return mr
}

// mountAll mirrors root and dest, mounting the outer one first when one
// contains the other.
func mountAll(ctx context.Context, sb *sandbox.Sandbox, root, dest string) (string, string, error) {
	order := []string{root, dest}
	if transactor.IsWithin(root, dest) {
		order = []string{dest, root}
	}
	mirrors := make(map[string]string, 2)
	for _, p := range order {
		m, err := sb.Mount(ctx, p)
		if err != nil {
			return "", "", err
		}
		mirrors[p] = m
	}
	return mirrors[root], mirrors[dest], nil
}

func normalize(stages []Stage) []Stage {
	if len(stages) == 0 {
		return append([]Stage(nil), AllStages...)
	}
	want := make(map[Stage]bool, len(stages))
	for _, s := range stages {
		want[s] = true
	}
	var out []Stage
	for _, s := range AllStages {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}

// ParseStage converts a stage name.
func ParseStage(s string) (Stage, error) {
	for _, st := range AllStages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}
