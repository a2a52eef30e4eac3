package scoredb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/table"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// Entry classes understood by the player's default table loader.
const (
	FolderClass = "bms.player.beatoraja.TableData$TableFolder"
	SongClass   = "bms.player.beatoraja.song.SongData"
)

// OldestLimit is the number of charts in an oldest-played folder.
const OldestLimit = 30

// OldestTableName names a default table file created by the oldest command.
const OldestTableName = "Oldest"

// Song is one chart of a default table folder.
type Song struct {
	Class  string `json:"class"`
	Title  string `json:"title"`
	SHA256 string `json:"sha256"`
}

// NewSong returns a song entry.
func NewSong(title, sha256 string) Song {
	return Song{Class: SongClass, Title: title, SHA256: sha256}
}

// Folder is one folder of a default table file.
type Folder struct {
	Class string `json:"class"`
	Name  string `json:"name"`
	Songs []Song `json:"songs"`
}

// NewFolder returns a folder entry.
func NewFolder(name string, songs []Song) Folder {
	if songs == nil {
		songs = []Song{}
	}
	return Folder{Class: FolderClass, Name: name, Songs: songs}
}

// DefaultTable is the player's default table file.
type DefaultTable struct {
	Name   string   `json:"name"`
	Folder []Folder `json:"folder"`
}

// LoadDefaultTable reads a default table file.
func LoadDefaultTable(path string) (*DefaultTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.E(types.KindExternal, "load table", path, err)
	}
	var t DefaultTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, types.E(types.KindExternal, "load table", path, err)
	}
	return &t, nil
}

// AppendOptions controls AppendFolder.
type AppendOptions struct {
	// CreateName creates a missing file as an empty table of this name. An
	// empty CreateName makes a missing file an error.
	CreateName string

	// Reset discards the existing folders before appending.
	Reset bool
}

// AppendFolder adds f to the default table at path and writes it back
// atomically through tx.
func AppendFolder(path string, f Folder, opts AppendOptions, tx *transactor.Transactor) (*DefaultTable, error) {
	var t *DefaultTable
	_, statErr := os.Stat(path)
	switch {
	case errors.Is(statErr, fs.ErrNotExist) && opts.CreateName != "":
		t = &DefaultTable{Name: opts.CreateName}
	case opts.Reset && opts.CreateName != "":
		t = &DefaultTable{Name: opts.CreateName}
	default:
		var err error
		if t, err = LoadDefaultTable(path); err != nil {
			return nil, err
		}
		if opts.Reset {
			t.Folder = nil
		}
	}

	t.Folder = append(t.Folder, f)

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding table: %w", err)
	}
	if err := tx.WriteFile(path, data); err != nil {
		return nil, types.E(types.KindExternal, "write table", path, err)
	}
	return t, nil
}

// TaskOptions configures Task.
type TaskOptions struct {
	// Lamp is the clear a chart must reach to drop out of the task.
	Lamp Lamp

	// MinLevel skips charts below this numeric level.
	MinLevel float64

	// Notes is the note budget. Charts are added while the notes of the
	// charts already added stay below it, so the last chart may overshoot.
	Notes int

	// Now stamps the folder name. Zero means time.Now.
	Now time.Time
}

// TaskReport describes a built task folder.
type TaskReport struct {
	Folder     Folder   `json:"folder"`
	Notes      int      `json:"notes"`
	Candidates int      `json:"candidates"`
	Skipped    []string `json:"skipped,omitempty"`
}

type taskChart struct {
	chart table.Chart
	level float64
	score *Score
	notes int
}

// Task builds a practice folder from table charts the player has not yet
// cleared at opts.Lamp, easiest and least played first, filled up to the
// note budget. Charts with a non-numeric level or no entry in the song
// database are skipped.
func (d *DB) Task(ctx context.Context, charts []table.Chart, opts TaskOptions) (*TaskReport, error) {
	rep := &TaskReport{}
	var pending []taskChart

	for _, c := range charts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		level, ok := c.Level.Number()
		if !ok {
			d.log.Warn("skipping chart with non-numeric level", "title", c.Title, "level", c.Level)
			rep.Skipped = append(rep.Skipped, c.SHA256)
			continue
		}
		if level < opts.MinLevel {
			continue
		}

		score, err := d.Score(ctx, c.SHA256)
		if err != nil {
			return nil, err
		}
		if score != nil && score.Clear >= opts.Lamp {
			continue
		}

		notes, found, err := d.Notes(ctx, c.SHA256)
		if err != nil {
			return nil, err
		}
		if !found {
			d.log.Debug("chart not in song database", "title", c.Title, "sha256", c.SHA256)
			rep.Skipped = append(rep.Skipped, c.SHA256)
			continue
		}
		pending = append(pending, taskChart{chart: c, level: level, score: score, notes: notes})
	}
	rep.Candidates = len(pending)

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.level != b.level {
			return a.level < b.level
		}
		if ac, bc := clearOf(a.score), clearOf(b.score); ac != bc {
			return ac < bc
		}
		return playsOf(a.score) < playsOf(b.score)
	})

	var songs []Song
	for _, p := range pending {
		if rep.Notes >= opts.Notes {
			break
		}
		rep.Notes += p.notes
		songs = append(songs, NewSong(p.chart.Title, p.chart.SHA256))
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	name := fmt.Sprintf("%s %d NOTES %d", now.Format("2006.01.02"), rep.Notes, now.Unix()%100)
	rep.Folder = NewFolder(name, songs)

	d.log.Info("task built", "charts", len(songs), "notes", rep.Notes, "candidates", rep.Candidates)
	return rep, nil
}

func clearOf(s *Score) Lamp {
	if s == nil {
		return 0
	}
	return s.Clear
}

func playsOf(s *Score) int {
	if s == nil {
		return 0
	}
	return s.PlayCount
}

// Oldest builds a folder of the limit least recently played charts whose
// clear is below lamp. Each song is titled with the days since it was last
// played.
func (d *DB) Oldest(ctx context.Context, lamp Lamp, limit int, now time.Time) (Folder, error) {
	if now.IsZero() {
		now = time.Now()
	}
	if limit <= 0 {
		limit = OldestLimit
	}
	scores, err := d.Unachieved(ctx, lamp, limit)
	if err != nil {
		return Folder{}, err
	}

	songs := make([]Song, 0, len(scores))
	for _, s := range scores {
		days := int(now.Sub(s.Date).Hours() / 24)
		songs = append(songs, NewSong(fmt.Sprintf("%d days ago", days), s.SHA256))
	}

	name := fmt.Sprintf("OLDEST_<%s_%s-%d", lamp, now.Format("2006.01.02"), now.Unix()%1000)
	d.log.Info("oldest folder built", "charts", len(songs), "lamp", lamp)
	return NewFolder(name, songs), nil
}
