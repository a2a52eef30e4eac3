package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
)

func TestTrackerSetStageResetsCounters(t *testing.T) {
	var tr Tracker
	tr.SetIndex(index.Progress{FilesFound: 10})
	tr.SetStage("merge")

	stage, p := tr.snapshot()
	if stage != "merge" {
		t.Errorf("expected stage 'merge', got %q", stage)
	}
	if p.FilesFound != 0 {
		t.Errorf("expected counters reset, got %d", p.FilesFound)
	}
}

func TestModelViewShowsProgress(t *testing.T) {
	tr := &Tracker{}
	m := newModel(Options{Title: "organize", Root: "/lib"}, tr, func() {})

	tr.SetStage("rename")
	tr.SetIndex(index.Progress{FilesFound: 1234, FilesHashed: 1000, CurrentPath: "/lib/a/b.bms"})

	view := m.View()
	for _, want := range []string{"organize", "/lib", "rename", "1,234", "1,000", "/lib/a/b.bms"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelCtrlCCancelsThenQuits(t *testing.T) {
	cancelled := 0
	m := newModel(Options{Title: "organize"}, &Tracker{}, func() { cancelled++ })

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(model)
	if cancelled != 1 {
		t.Errorf("expected cancel on first ctrl+c, got %d calls", cancelled)
	}
	if !m.stopping {
		t.Error("expected stopping after first ctrl+c")
	}
	if cmd != nil {
		t.Error("expected the view to stay up after first ctrl+c")
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Error("expected stopping notice in view")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit on second ctrl+c")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModelDoneQuitsWithEmptyView(t *testing.T) {
	m := newModel(Options{Title: "check"}, &Tracker{}, func() {})

	updated, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if v := updated.(model).View(); v != "" {
		t.Errorf("expected empty final view, got %q", v)
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path   string
		maxLen int
		want   string
	}{
		{"/short", 20, "/short"},
		{"/a/very/long/path/to/file.bms", 12, ".../file.bms"},
		{"/abc", 2, "/a"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, tt.maxLen); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.maxLen, got, tt.want)
		}
	}
}
