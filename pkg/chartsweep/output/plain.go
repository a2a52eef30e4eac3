package output

import (
	"bytes"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// PlainFormatter writes one tab-aligned record per line with no styling,
// for scripts and pipes. The first column names the record kind.
type PlainFormatter struct{}

// Format writes r to w.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	row := func(cols ...any) {
		for i, c := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprint(tw, "\n")
	}
	failed := func(fs []types.Failure) {
		for _, fl := range fs {
			row("failed", fl.Path, fl.Kind, fl.Error)
		}
	}

	if rep := r.Organize; rep != nil {
		if rn := rep.Rename; rn != nil {
			for _, m := range rn.Renames {
				row("rename", m.Source, m.Target)
			}
			for _, c := range rn.Conflicts {
				row("conflict", c.Source, c.Target)
			}
			failed(rn.Failures)
		}
		if m := rep.Merge; m != nil {
			for _, p := range m.Merged {
				row("merge", p.Source, p.Target)
			}
			for _, a := range m.Resolved.Anomalies {
				row(string(a.Kind), a.Source, a.Target)
			}
			failed(m.Failures)
		}
		if rc := rep.Reconstruct; rc != nil {
			for _, m := range rc.Moves {
				row("move", m.Source, m.Target)
			}
			failed(rc.Failures)
		}
		for _, e := range rep.ScanErrors {
			row("unreadable", e.Path, e.Error)
		}
		row("summary", fmt.Sprintf("changes=%d", rep.Changes()), fmt.Sprintf("pruned=%d", rep.Pruned), fmt.Sprintf("failed=%d", rep.Failed()))
	}

	if res := r.Coverage; res != nil {
		for _, m := range res.Missing {
			row("missing", m.Level, m.Title, m.URL, m.DiffURL)
		}
		row("found", fmt.Sprintf("%d/%d", res.Found, res.Total))
	}

	if rep := r.Install; rep != nil {
		for _, in := range rep.Installed {
			row("installed", in.Source, in.Target, in.Files)
		}
		for _, s := range rep.Skipped {
			row("skipped", s)
		}
		failed(rep.Failures)
	}

	if p := r.Practice; p != nil {
		row("folder", p.Folder.Name, p.Table)
		for _, s := range p.Folder.Songs {
			row("song", s.SHA256, s.Title)
		}
	}

	for _, e := range r.History {
		row(e.ID, e.Timestamp.Format(time.RFC3339), e.Command, e.Summary.Actions, e.Summary.Failed)
	}
	if e := r.Entry; e != nil {
		for _, a := range e.Actions {
			row(a.Op, a.Source, a.Target, a.Error)
		}
	}

	for _, k := range sortedKeys(r.Extra) {
		row(k, r.Extra[k])
	}
	return tw.Flush()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
