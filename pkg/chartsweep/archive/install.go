package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// Options configures Install.
type Options struct {
	// Recursive installs every immediate subdirectory of the source as its
	// own staging folder instead of the source itself.
	Recursive bool

	// Trash moves extracted archives to the trash instead of deleting them.
	Trash bool
}

// Installed is one staging folder installed into the library.
type Installed struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Archives []string `json:"archives"`
	Files    int      `json:"files"`
}

// Report is the outcome of Install.
type Report struct {
	Installed []Installed     `json:"installed"`
	Skipped   []string        `json:"skipped,omitempty"`
	Failures  []types.Failure `json:"failures,omitempty"`
}

// now is replaced in tests.
var now = time.Now

// Install extracts the archives found directly in each staging folder and
// merges the folder into dest under a name taken from the archives. Without
// Recursive the staging folder is from itself. A folder with no archives is
// skipped. A corrupt archive fails its folder and leaves it in place.
func Install(ctx context.Context, from, dest string, opts Options, tx *transactor.Transactor) (Report, error) {
	log := logging.Get("install")
	var rep Report

	info, err := os.Stat(from)
	if err != nil {
		return rep, types.E(types.KindDirectory, "install", from, err)
	}
	if !info.IsDir() {
		return rep, types.E(types.KindDirectory, "install", from, os.ErrInvalid)
	}

	folders := []string{from}
	if opts.Recursive {
		if folders, err = subdirs(from); err != nil {
			return rep, types.E(types.KindDirectory, "install", from, err)
		}
	}

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		inst, ok, err := installFolder(folder, dest, opts, tx)
		switch {
		case err != nil:
			log.Error("install failed", "folder", folder, "err", err)
			rep.Failures = append(rep.Failures, types.NewFailure(folder, err))
		case !ok:
			log.Debug("no archives", "folder", folder)
			rep.Skipped = append(rep.Skipped, folder)
		default:
			log.Info("installed", "source", folder, "target", inst.Target, "files", inst.Files)
			rep.Installed = append(rep.Installed, inst)
		}
	}
	return rep, nil
}

func installFolder(folder, dest string, opts Options, tx *transactor.Transactor) (Installed, bool, error) {
	archives, err := archivesIn(folder)
	if err != nil {
		return Installed{}, false, types.E(types.KindDirectory, "install", folder, err)
	}
	if len(archives) == 0 {
		return Installed{}, false, nil
	}

	name, err := FolderName(archives)
	if err != nil {
		return Installed{}, false, err
	}
	inst := Installed{
		Source:   folder,
		Target:   filepath.Join(dest, name),
		Archives: archives,
	}

	for _, a := range archives {
		err := tx.Apply(manifest.OpExtract, a, folder, func() error {
			n, err := Extract(a, folder)
			inst.Files += n
			return err
		})
		if err != nil {
			return inst, false, err
		}
	}
	for _, a := range archives {
		if err := tx.Discard(a, opts.Trash); err != nil {
			return inst, false, types.E(types.KindDirectory, "install", a, err)
		}
	}
	if err := tx.MergeInto(folder, inst.Target); err != nil {
		return inst, false, err
	}
	return inst, true, nil
}

// FolderName picks the chart folder name for a set of archives: the top
// directory of the archive with the most entries, else that archive's file
// name without extension, else a timestamp.
func FolderName(archives []string) (string, error) {
	var (
		best    string
		bestTop string
		bestN   = -1
	)
	for _, a := range archives {
		entries, err := List(a)
		if err != nil {
			return "", err
		}
		if len(entries) > bestN {
			best, bestN = a, len(entries)
			bestTop = TopDir(entries)
		}
	}

	if name := strings.TrimSpace(bestTop); name != "" {
		return name, nil
	}
	if name := strings.TrimSpace(Stem(filepath.Base(best))); name != "" {
		return name, nil
	}
	return strconv.FormatInt(now().UnixMicro(), 10), nil
}

func archivesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsArchive(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
