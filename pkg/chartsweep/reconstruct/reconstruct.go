// Package reconstruct relocates chart folders under a single destination
// root, optionally sharded into two-hex-digit buckets.
package reconstruct

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// Bucket returns the shard bucket of a folder name: the first two uppercase
// hex digits of its MD5 digest.
func Bucket(name string) string {
	sum := md5.Sum([]byte(name))
	return strings.ToUpper(hex.EncodeToString(sum[:1]))
}

// Target returns where dir belongs under destRoot.
func Target(dir, destRoot string, shard bool) string {
	base := filepath.Base(dir)
	if shard {
		return filepath.Join(destRoot, Bucket(base), base)
	}
	return filepath.Join(destRoot, base)
}

// Move is a planned or applied relocation.
type Move struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Report is the outcome of Apply.
type Report struct {
	Moves     []Move          `json:"moves"`
	InPlace   int             `json:"in_place"`
	Anomalies []Move          `json:"anomalies,omitempty"`
	Failures  []types.Failure `json:"failures,omitempty"`
	Pruned    int             `json:"pruned"`
}

// Apply merges every canonical chart folder of idx into its target under
// destRoot and then prunes empty directories left directly under the index
// root. Per-folder errors are collected in the report. The returned error is
// non-nil only when ctx was cancelled before any folder moved.
func Apply(ctx context.Context, idx *index.Index, destRoot string, shard bool, tx *transactor.Transactor) (Report, error) {
	var rep Report
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	log := logging.Get("reconstruct")
	root := idx.Root()
	if destRoot == "" {
		destRoot = root
	}
	destRoot, err := filepath.Abs(destRoot)
	if err != nil {
		return rep, types.E(types.KindDirectory, "reconstruct", destRoot, err)
	}

	for _, dir := range idx.CanonicalParents() {
		target := Target(dir, destRoot, shard)

		switch {
		case target == dir:
			rep.InPlace++
			continue
		case transactor.IsWithin(target, dir):
			log.Warn("destination lies inside chart folder, skipping", "folder", dir, "target", target)
			rep.Anomalies = append(rep.Anomalies, Move{Source: dir, Target: target})
			continue
		}

		if err := tx.MergeInto(dir, target); err != nil {
			log.Error("relocation failed", "folder", dir, "target", target, "err", err)
			rep.Failures = append(rep.Failures, types.NewFailure(dir, err))
			continue
		}
		rep.Moves = append(rep.Moves, Move{Source: dir, Target: target})
	}

	n, err := tx.PruneEmpty(root)
	if err != nil {
		rep.Failures = append(rep.Failures, types.NewFailure(root, err))
	}
	rep.Pruned = n

	log.Info("reconstruct finished",
		"moved", len(rep.Moves),
		"in_place", rep.InPlace,
		"failed", len(rep.Failures),
		"pruned", rep.Pruned)
	return rep, nil
}
