package naming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// DefaultWorkers is the header parsing concurrency when none is configured.
const DefaultWorkers = 8

var errNoCandidates = errors.New("no chart file with both #ARTIST and #TITLE")

// ProposeName reads the chart files directly inside folder and returns the
// name "[artist] title" built from the shortest artist and the shortest
// difficulty-stripped title found.
func ProposeName(folder string) (string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return "", types.E(types.KindDirectory, "propose", folder, err)
	}

	var artists, titles []string
	for _, e := range entries {
		if e.IsDir() || !types.IsChartFile(e.Name()) {
			continue
		}
		path := filepath.Join(folder, e.Name())
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		c, ok := ParseHeader(data)
		if !ok {
			continue
		}
		artists = append(artists, c.Artist)
		titles = append(titles, RemoveDifficulty(c.Title))
	}
	if len(artists) == 0 {
		return "", types.E(types.KindNameParse, "propose", folder, errNoCandidates)
	}

	byLen := func(s []string) {
		sort.SliceStable(s, func(i, j int) bool { return len(s[i]) < len(s[j]) })
	}
	byLen(artists)
	byLen(titles)

	artist := Sanitize(artists[0], MaxArtistLen)
	title := Sanitize(titles[0], MaxTitleLen)
	if title == "" {
		return "", types.E(types.KindNameParse, "propose", folder, fmt.Errorf("title %q is empty after sanitizing", titles[0]))
	}
	return fmt.Sprintf("[%s] %s", artist, title), nil
}

// Rename is a planned or applied folder rename.
type Rename struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Report is the outcome of Resolver.Apply.
type Report struct {
	Renames   []Rename        `json:"renames"`
	Unchanged int             `json:"unchanged"`
	Unparsed  int             `json:"unparsed"`
	Conflicts []Rename        `json:"conflicts,omitempty"`
	Failures  []types.Failure `json:"failures,omitempty"`
}

// Resolver renames the chart folders of an index.
type Resolver struct {
	// Workers bounds concurrent header parsing.
	Workers int

	log *logging.Logger
}

// NewResolver returns a Resolver parsing headers with the given concurrency.
func NewResolver(workers int) *Resolver {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Resolver{Workers: workers, log: logging.Get("naming")}
}

// Proposal is the name proposed for one folder. Err is set when no name
// could be derived.
type Proposal struct {
	Folder string
	Name   string
	Err    error
}

// Plan proposes a name for every canonical chart folder of idx other than the
// root itself. Folders are parsed in parallel; the result is in folder order.
func (r *Resolver) Plan(ctx context.Context, idx *index.Index) ([]Proposal, error) {
	var folders []string
	for _, dir := range idx.CanonicalParents() {
		if dir != idx.Root() {
			folders = append(folders, dir)
		}
	}

	out := make([]Proposal, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i, dir := range folders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name, err := ProposeName(dir)
			out[i] = Proposal{Folder: dir, Name: name, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply renames every canonical chart folder of idx to its proposed name.
// Proposals are computed in parallel, then applied one at a time in folder
// order. A target that already exists, or that an earlier folder in this pass
// claimed, is skipped with a warning.
func (r *Resolver) Apply(ctx context.Context, idx *index.Index, tx *transactor.Transactor) (Report, error) {
	var rep Report
	log := r.log
	if log == nil {
		log = logging.Get("naming")
	}

	proposals, err := r.Plan(ctx, idx)
	if err != nil {
		return rep, err
	}

	claimed := make(map[string]bool)
	vacated := make(map[string]bool)
	occupied := func(path string) bool {
		if claimed[path] {
			return true
		}
		if vacated[path] {
			return false
		}
		_, err := os.Lstat(path)
		return err == nil
	}

	for _, p := range proposals {
		if p.Err != nil {
			if types.KindOf(p.Err) == types.KindNameParse {
				log.Debug("folder left unrenamed", "folder", p.Folder, "err", p.Err)
				rep.Unparsed++
			} else {
				log.Warn("cannot read folder", "folder", p.Folder, "err", p.Err)
				rep.Failures = append(rep.Failures, types.NewFailure(p.Folder, p.Err))
			}
			continue
		}

		target := filepath.Join(filepath.Dir(p.Folder), p.Name)
		if target == p.Folder {
			rep.Unchanged++
			continue
		}
		if occupied(target) {
			log.Warn("rename skipped, destination already exists", "folder", p.Folder, "target", target)
			rep.Conflicts = append(rep.Conflicts, Rename{Source: p.Folder, Target: target})
			continue
		}

		if err := tx.Move(p.Folder, target); err != nil {
			if errors.Is(err, types.ErrConflict) {
				log.Warn("rename skipped, destination already exists", "folder", p.Folder, "target", target)
				rep.Conflicts = append(rep.Conflicts, Rename{Source: p.Folder, Target: target})
			} else {
				log.Error("rename failed", "folder", p.Folder, "target", target, "err", err)
				rep.Failures = append(rep.Failures, types.NewFailure(p.Folder, err))
			}
			continue
		}
		claimed[target] = true
		vacated[p.Folder] = true
		delete(claimed, p.Folder)
		rep.Renames = append(rep.Renames, Rename{Source: p.Folder, Target: target})
	}

	log.Info("rename finished",
		"renamed", len(rep.Renames),
		"unchanged", rep.Unchanged,
		"unparsed", rep.Unparsed,
		"conflicts", len(rep.Conflicts))
	return rep, nil
}
