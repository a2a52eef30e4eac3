package pipeline

import (
	"sort"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/sandbox"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// realPaths forwards journal actions with sandbox paths mapped back.
type realPaths struct {
	sb   *sandbox.Sandbox
	next manifest.Recorder
}

func (r *realPaths) Record(a manifest.Action) {
	a.Source = r.sb.Real(a.Source)
	if a.Target != "" {
		a.Target = r.sb.Real(a.Target)
	}
	r.next.Record(a)
}

func (r *Report) translate(toReal func(string) string) {
	for i := range r.ScanErrors {
		r.ScanErrors[i].Path = toReal(r.ScanErrors[i].Path)
	}
	sortScanErrors(r.ScanErrors)

	if rn := r.Rename; rn != nil {
		for i := range rn.Renames {
			rn.Renames[i].Source = toReal(rn.Renames[i].Source)
			rn.Renames[i].Target = toReal(rn.Renames[i].Target)
		}
		for i := range rn.Conflicts {
			rn.Conflicts[i].Source = toReal(rn.Conflicts[i].Source)
			rn.Conflicts[i].Target = toReal(rn.Conflicts[i].Target)
		}
		failures(rn.Failures, toReal)
	}

	if m := r.Merge; m != nil {
		pairs(m.Merged, toReal)
		pairs(m.Resolved.Pairs, toReal)
		for i := range m.Resolved.Edges {
			m.Resolved.Edges[i].Source = toReal(m.Resolved.Edges[i].Source)
			m.Resolved.Edges[i].Target = toReal(m.Resolved.Edges[i].Target)
		}
		for i := range m.Resolved.Anomalies {
			m.Resolved.Anomalies[i].Source = toReal(m.Resolved.Anomalies[i].Source)
			m.Resolved.Anomalies[i].Target = toReal(m.Resolved.Anomalies[i].Target)
		}
		failures(m.Failures, toReal)
	}

	if rc := r.Reconstruct; rc != nil {
		for i := range rc.Moves {
			rc.Moves[i].Source = toReal(rc.Moves[i].Source)
			rc.Moves[i].Target = toReal(rc.Moves[i].Target)
		}
		for i := range rc.Anomalies {
			rc.Anomalies[i].Source = toReal(rc.Anomalies[i].Source)
			rc.Anomalies[i].Target = toReal(rc.Anomalies[i].Target)
		}
		failures(rc.Failures, toReal)
	}
}

func pairs(ps []types.MergePair, toReal func(string) string) {
	for i := range ps {
		ps[i].Source = toReal(ps[i].Source)
		ps[i].Target = toReal(ps[i].Target)
	}
}

func failures(fs []types.Failure, toReal func(string) string) {
	for i := range fs {
		fs[i].Path = toReal(fs[i].Path)
	}
}

func sortScanErrors(errs []types.ScanError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
}
