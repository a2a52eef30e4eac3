package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/archive"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/pipeline"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/table"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// PrettyFormatter renders results with lipgloss styling for a terminal.
type PrettyFormatter struct{}

// Format writes r to w.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.header(r))
	w.WriteString("\n")

	switch {
	case r.Organize != nil:
		f.organize(w, r.Organize)
	case r.Coverage != nil:
		f.coverage(w, r.Coverage)
	case r.Install != nil:
		f.install(w, r.Install)
	case r.Practice != nil:
		f.practice(w, r.Practice)
	case r.Entry != nil:
		f.entry(w, r.Entry)
	case r.History != nil:
		f.history(w, r.History)
	}

	for _, k := range sortedKeys(r.Extra) {
		fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(k+":"), ValueStyle.Render(r.Extra[k]))
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, msg := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + msg))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) header(r *Result) string {
	line := TitleStyle.Render(r.Command)
	if r.DryRun {
		line += "  " + WarningStyle.Bold(true).Render("dry run: nothing was changed")
	}
	if r.Organize != nil {
		line += "\n" + LabelStyle.Render("Root:") + " " + ValueStyle.Render(r.Organize.Root)
		if r.Organize.Dest != r.Organize.Root {
			line += "  " + LabelStyle.Render("Dest:") + " " + ValueStyle.Render(r.Organize.Dest)
		}
	}
	return HeaderBox.Render(line)
}

func (f *PrettyFormatter) organize(w *bytes.Buffer, rep *pipeline.Report) {
	if rn := rep.Rename; rn != nil {
		section(w, "Renamed", len(rn.Renames))
		for _, m := range rn.Renames {
			move(w, m.Source, m.Target)
		}
		for _, c := range rn.Conflicts {
			fmt.Fprintf(w, "  %s %s\n", WarningStyle.Render("conflict"), PathStyle.Render(c.Target))
		}
		failureLines(w, rn.Failures)
	}

	if m := rep.Merge; m != nil {
		section(w, "Merged", len(m.Merged))
		for _, p := range m.Merged {
			move(w, p.Source, p.Target)
		}
		for _, a := range m.Resolved.Anomalies {
			fmt.Fprintf(w, "  %s %s %s %s\n",
				WarningStyle.Render(string(a.Kind)),
				PathStyle.Render(a.Source), ArrowStyle.Render("->"), PathStyle.Render(a.Target))
		}
		failureLines(w, m.Failures)
	}

	if rc := rep.Reconstruct; rc != nil {
		section(w, "Relocated", len(rc.Moves))
		for _, m := range rc.Moves {
			move(w, m.Source, m.Target)
		}
		if rc.InPlace > 0 {
			fmt.Fprintf(w, "  %s\n", MutedStyle.Render(fmt.Sprintf("%d folders already in place", rc.InPlace)))
		}
		failureLines(w, rc.Failures)
	}

	if len(rep.ScanErrors) > 0 {
		section(w, "Unreadable", len(rep.ScanErrors))
		for _, e := range rep.ScanErrors {
			fmt.Fprintf(w, "  %s %s\n", PathStyle.Render(e.Path), MutedStyle.Render(e.Error))
		}
	}

	parts := []string{
		stat("Changes", rep.Changes()),
		stat("Pruned", rep.Pruned),
		stat("Failed", rep.Failed()),
		LabelStyle.Render("Took:") + " " + ValueStyle.Render(formatDuration(rep.Elapsed)),
	}
	w.WriteString(FooterBox.Render(strings.Join(parts, "  ")))
	w.WriteString("\n")
}

func (f *PrettyFormatter) coverage(w *bytes.Buffer, res *table.Result) {
	if res.Table != "" {
		fmt.Fprintf(w, "%s %s\n\n", LabelStyle.Render("Table:"), ValueStyle.Render(res.Table))
	}
	section(w, "Missing", len(res.Missing))
	for _, m := range res.Missing {
		fmt.Fprintf(w, "  %s %s\n", WarningStyle.Render("["+string(m.Level)+"]"), ValueStyle.Render(m.Title))
		fmt.Fprintf(w, "      %s %s\n", LabelStyle.Render("url:"), PathStyle.Render(m.URL))
		if m.DiffURL != "" {
			fmt.Fprintf(w, "      %s %s\n", LabelStyle.Render("diff:"), PathStyle.Render(m.DiffURL))
		}
		for _, s := range m.Suggestions {
			fmt.Fprintf(w, "      %s %s\n", LabelStyle.Render("similar:"), MutedStyle.Render(s))
		}
	}

	style := SuccessStyle
	if res.Found < res.Total {
		style = WarningStyle
	}
	summary := style.Render(fmt.Sprintf("%d / %d charts found (%.1f%%)", res.Found, res.Total, res.Percent()))
	w.WriteString(FooterBox.Render(summary))
	w.WriteString("\n")
}

func (f *PrettyFormatter) install(w *bytes.Buffer, rep *archive.Report) {
	section(w, "Installed", len(rep.Installed))
	for _, in := range rep.Installed {
		move(w, in.Source, in.Target)
		fmt.Fprintf(w, "      %s\n", MutedStyle.Render(fmt.Sprintf("%d archives, %d files", len(in.Archives), in.Files)))
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  %s %s\n", MutedStyle.Render("skipped"), PathStyle.Render(s))
	}
	failureLines(w, rep.Failures)
}

func (f *PrettyFormatter) practice(w *bytes.Buffer, p *Practice) {
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Folder:"), TitleStyle.Render(p.Folder.Name))
	fmt.Fprintf(w, "%s %s\n\n", LabelStyle.Render("Table:"), PathStyle.Render(p.Table))
	for i, s := range p.Folder.Songs {
		fmt.Fprintf(w, "  %s %s\n", MutedStyle.Render(fmt.Sprintf("%3d.", i+1)), ValueStyle.Render(s.Title))
	}
	parts := []string{stat("Charts", len(p.Folder.Songs))}
	if p.Notes > 0 {
		parts = append(parts, LabelStyle.Render("Notes:")+" "+ValueStyle.Render(humanize.Comma(int64(p.Notes))))
	}
	if len(p.Skipped) > 0 {
		parts = append(parts, stat("Skipped", len(p.Skipped)))
	}
	w.WriteString(FooterBox.Render(strings.Join(parts, "  ")))
	w.WriteString("\n")
}

func (f *PrettyFormatter) history(w *bytes.Buffer, entries []manifest.Entry) {
	if len(entries) == 0 {
		w.WriteString(MutedStyle.Render("  No operations recorded\n"))
		return
	}
	for _, e := range entries {
		status := SuccessStyle.Render("ok")
		if e.Summary.Failed > 0 {
			status = ErrorStyle.Render(fmt.Sprintf("%d failed", e.Summary.Failed))
		}
		dry := ""
		if e.DryRun {
			dry = " " + WarningStyle.Render("(dry run)")
		}
		fmt.Fprintf(w, "  %s  %s  %s  %s%s\n",
			MutedStyle.Render(humanize.Time(e.Timestamp)),
			ValueStyle.Render(e.ID),
			LabelStyle.Render(fmt.Sprintf("%d actions", e.Summary.Actions)),
			status, dry)
	}
}

func (f *PrettyFormatter) entry(w *bytes.Buffer, e *manifest.Entry) {
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Command:"), ValueStyle.Render(e.Command))
	fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Root:"), PathStyle.Render(e.Root))
	fmt.Fprintf(w, "%s %s\n\n", LabelStyle.Render("When:"), ValueStyle.Render(e.Timestamp.Format(time.RFC3339)))
	for _, a := range e.Actions {
		op := SuccessStyle.Render(fmt.Sprintf("%-7s", a.Op))
		if a.Error != "" {
			op = ErrorStyle.Render(fmt.Sprintf("%-7s", a.Op))
		}
		line := "  " + op + " " + PathStyle.Render(a.Source)
		if a.Target != "" {
			line += " " + ArrowStyle.Render("->") + " " + PathStyle.Render(a.Target)
		}
		w.WriteString(line + "\n")
		if a.Error != "" {
			w.WriteString("          " + ErrorStyle.Render(a.Error) + "\n")
		}
	}
}

func section(w *bytes.Buffer, title string, n int) {
	fmt.Fprintf(w, "%s %s\n", TitleStyle.Render(title), MutedStyle.Render(fmt.Sprintf("(%d)", n)))
}

func move(w *bytes.Buffer, src, dst string) {
	fmt.Fprintf(w, "  %s %s %s\n", PathStyle.Render(src), ArrowStyle.Render("->"), PathStyle.Render(dst))
}

func failureLines(w *bytes.Buffer, fs []types.Failure) {
	for _, fl := range fs {
		fmt.Fprintf(w, "  %s %s %s\n",
			ErrorStyle.Render("failed"), PathStyle.Render(fl.Path), MutedStyle.Render(fl.Error))
	}
}

func stat(label string, n int) string {
	return LabelStyle.Render(label+":") + " " + ValueStyle.Render(fmt.Sprintf("%d", n))
}

// formatDuration renders d compactly.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	switch {
	case sec < 1:
		return fmt.Sprintf("%.0fms", sec*1000)
	case sec < 60:
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, int(sec)%60)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
