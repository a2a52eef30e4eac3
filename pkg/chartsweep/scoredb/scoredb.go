// Package scoredb reads a player's score and song databases and builds
// practice folders for the player's default table file.
package scoredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// Lamp is a clear lamp as stored in the score database.
type Lamp int

// Clear lamps accepted on the command line.
const (
	LampAssistEasy Lamp = 3
	LampEasy       Lamp = 4
	LampNormal     Lamp = 5
	LampHard       Lamp = 6
	LampExHard     Lamp = 7
	LampFullCombo  Lamp = 8
	LampPerfect    Lamp = 9
)

var lampNames = map[string]Lamp{
	"AEASY":   LampAssistEasy,
	"EASY":    LampEasy,
	"NORMAL":  LampNormal,
	"HARD":    LampHard,
	"EXHARD":  LampExHard,
	"FC":      LampFullCombo,
	"PERFECT": LampPerfect,
}

// ParseLamp converts a lamp name such as "HARD". Names are case-insensitive.
func ParseLamp(s string) (Lamp, error) {
	if l, ok := lampNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid lamp %q (want AEASY, EASY, NORMAL, HARD, EXHARD, FC or PERFECT)", s)
}

func (l Lamp) String() string {
	for name, v := range lampNames {
		if v == l {
			return name
		}
	}
	return fmt.Sprintf("Lamp(%d)", int(l))
}

// Score is one row of the score table.
type Score struct {
	SHA256    string
	Clear     Lamp
	PlayCount int
	MinBP     int
	ScoreHash string
	Date      time.Time
}

// DB is a read-only handle on the score database and, optionally, the song
// database.
type DB struct {
	score *sql.DB
	song  *sql.DB
	log   *logging.Logger
}

// Open opens scorePath and songPath read-only. songPath may be empty when
// note counts are not needed.
func Open(scorePath, songPath string) (*DB, error) {
	d := &DB{log: logging.Get("scoredb")}

	var err error
	if d.score, err = openReadOnly(scorePath); err != nil {
		return nil, err
	}
	if songPath != "" {
		if d.song, err = openReadOnly(songPath); err != nil {
			d.score.Close()
			return nil, err
		}
	}
	d.log.Debug("opened score database", "score", scorePath, "song", songPath)
	return d, nil
}

func openReadOnly(path string) (*sql.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, types.E(types.KindExternal, "open database", path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(abs)+"?mode=ro")
	if err != nil {
		return nil, types.E(types.KindExternal, "open database", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.E(types.KindExternal, "open database", path, err)
	}
	return db, nil
}

// Close closes both databases.
func (d *DB) Close() error {
	var errs []error
	if d.score != nil {
		errs = append(errs, d.score.Close())
	}
	if d.song != nil {
		errs = append(errs, d.song.Close())
	}
	return errors.Join(errs...)
}

const scoreQuery = `SELECT sha256, clear, playcount, minbp, scorehash, date FROM score WHERE sha256 = ? LIMIT 1`

// Score returns the player's score for a chart, or nil when it was never
// played.
func (d *DB) Score(ctx context.Context, sha256 string) (*Score, error) {
	row := d.score.QueryRowContext(ctx, scoreQuery, sha256)
	s, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.E(types.KindExternal, "score", sha256, err)
	}
	return s, nil
}

// Notes returns the rounded note count of a chart from the song database.
// ok is false when the chart is not in the database.
func (d *DB) Notes(ctx context.Context, sha256 string) (notes int, ok bool, err error) {
	if d.song == nil {
		return 0, false, types.E(types.KindExternal, "notes", sha256, errors.New("song database not open"))
	}
	var n sql.NullFloat64
	err = d.song.QueryRowContext(ctx, `SELECT notes FROM song WHERE sha256 = ? LIMIT 1`, sha256).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, types.E(types.KindExternal, "notes", sha256, err)
	}
	return int(math.Round(n.Float64)), true, nil
}

// Unachieved returns up to limit scores with a clear below lamp, least
// recently played first.
func (d *DB) Unachieved(ctx context.Context, lamp Lamp, limit int) ([]Score, error) {
	rows, err := d.score.QueryContext(ctx,
		`SELECT sha256, clear, playcount, minbp, scorehash, date FROM score WHERE clear < ? ORDER BY date ASC LIMIT ?`,
		int(lamp), limit)
	if err != nil {
		return nil, types.E(types.KindExternal, "oldest", "score", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, types.E(types.KindExternal, "oldest", "score", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.E(types.KindExternal, "oldest", "score", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScore(r scanner) (*Score, error) {
	var (
		s                      Score
		lamp, playcount, minbp sql.NullInt64
		scorehash              sql.NullString
		date                   sql.NullInt64
	)
	if err := r.Scan(&s.SHA256, &lamp, &playcount, &minbp, &scorehash, &date); err != nil {
		return nil, err
	}
	s.Clear = Lamp(lamp.Int64)
	s.PlayCount = int(playcount.Int64)
	s.MinBP = int(minbp.Int64)
	s.ScoreHash = scorehash.String
	if date.Valid {
		s.Date = time.Unix(date.Int64, 0)
	}
	return &s, nil
}
