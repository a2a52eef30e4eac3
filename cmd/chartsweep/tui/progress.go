package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
)

// refreshInterval is how often the view re-reads the tracker.
const refreshInterval = 100 * time.Millisecond

// maxWarnings is the number of recent warnings shown under the counters.
const maxWarnings = 3

// Tracker receives progress from the work function. It is safe for
// concurrent use; index progress callbacks arrive from worker goroutines.
type Tracker struct {
	mu    sync.Mutex
	stage string
	index index.Progress
}

// SetStage records the step currently running and resets the counters.
func (t *Tracker) SetStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.index = index.Progress{}
}

// SetIndex records the latest index build progress.
func (t *Tracker) SetIndex(p index.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.index = p
}

func (t *Tracker) snapshot() (string, index.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage, t.index
}

// Options configures the progress view.
type Options struct {
	// Title is the command name shown in the header.
	Title string

	// Root is the library being processed.
	Root string
}

// WorkFunc is the job the view reports on.
type WorkFunc func(ctx context.Context, t *Tracker) error

type tickMsg time.Time

type doneMsg struct {
	err error
}

type model struct {
	opts     Options
	tracker  *Tracker
	cancel   context.CancelFunc
	spinner  spinner.Model
	start    time.Time
	width    int
	stopping bool
	done     bool
}

func newModel(opts Options, tracker *Tracker, cancel context.CancelFunc) model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = stageStyle

	return model{
		opts:    opts,
		tracker: tracker,
		cancel:  cancel,
		spinner: s,
		start:   time.Now(),
		width:   80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The first press asks the work to stop; a second leaves at once.
			if m.stopping {
				return m, tea.Quit
			}
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case doneMsg:
		m.done = true
		return m, tea.Quit

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return ""
	}

	contentWidth := max(m.width-4, 40)
	stage, p := m.tracker.snapshot()
	if stage == "" {
		stage = "starting"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("chartsweep " + m.opts.Title))
	if m.opts.Root != "" {
		b.WriteString("  " + mutedTextStyle.Render(truncatePath(m.opts.Root, contentWidth-len(m.opts.Title)-14)))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %s  %s\n", m.spinner.View(), stageStyle.Render(stage),
		mutedTextStyle.Render(time.Since(m.start).Round(time.Second).String()))

	counters := fmt.Sprintf("found %s  hashed %s", humanize.Comma(p.FilesFound), humanize.Comma(p.FilesHashed))
	if p.CacheHits > 0 {
		counters += fmt.Sprintf("  cached %s", humanize.Comma(p.CacheHits))
	}
	if p.Dropped > 0 {
		counters += fmt.Sprintf("  unreadable %s", humanize.Comma(p.Dropped))
	}
	b.WriteString(counters + "\n")
	if p.CurrentPath != "" && !p.WalkComplete {
		b.WriteString(mutedTextStyle.Render(truncatePath(p.CurrentPath, contentWidth)) + "\n")
	}

	if buf := logging.Buffer(); buf != nil {
		for _, e := range buf.LastAtLeast(logging.LevelWarn, maxWarnings) {
			line := fmt.Sprintf("%s [%s] %s", e.Level, e.Component, e.Message)
			b.WriteString(warningTextStyle.Render(truncatePath(line, contentWidth)) + "\n")
		}
	}

	b.WriteString("\n")
	if m.stopping {
		b.WriteString(warningTextStyle.Render("stopping..."))
	} else {
		b.WriteString(mutedTextStyle.Render("[ctrl+c to stop]"))
	}
	return boxStyle.Width(m.width - 2).Render(b.String())
}

// Run shows the progress view on stderr while work runs and returns work's
// error. Pressing ctrl+c cancels the context passed to work; the view stays
// up until work returns.
func Run(ctx context.Context, opts Options, work WorkFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := &Tracker{}
	p := tea.NewProgram(newModel(opts, tracker, cancel), tea.WithOutput(os.Stderr))

	errCh := make(chan error, 1)
	go func() {
		err := work(ctx, tracker)
		errCh <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errCh
		return fmt.Errorf("progress view: %w", err)
	}
	return <-errCh
}
