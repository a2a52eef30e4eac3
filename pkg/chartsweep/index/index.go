package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/hashcache"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// recycleBin is the Windows recycle bin folder name.
const recycleBin = "$RECYCLE.BIN"

// Stats summarizes a build.
type Stats struct {
	Files      int           `json:"files"`
	Groups     int           `json:"groups"`
	Duplicated int           `json:"duplicated"`
	Dropped    int           `json:"dropped"`
	CacheHits  int           `json:"cache_hits"`
	Bytes      int64         `json:"bytes"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Index is an immutable snapshot of the chart files under a root.
type Index struct {
	root   string
	files  []types.ChartFile
	groups types.HashGroup
	errors []types.ScanError
	stats  Stats
}

// Root returns the absolute root the index was built from.
func (x *Index) Root() string { return x.root }

// Files returns every indexed chart file in path order.
func (x *Index) Files() []types.ChartFile { return x.files }

// Groups returns the hash to paths mapping.
func (x *Index) Groups() types.HashGroup { return x.groups }

// Errors returns the per-file failures that were dropped from the index.
func (x *Index) Errors() []types.ScanError { return x.errors }

// Stats returns build statistics.
func (x *Index) Stats() Stats { return x.stats }

// Has reports whether any indexed file has the given digest.
func (x *Index) Has(hash string) bool {
	_, ok := x.groups[strings.ToLower(hash)]
	return ok
}

// CanonicalParents returns the chart folders of the index: the parent of
// the first member of every group, with folders nested inside another
// returned folder removed. The result is sorted and pairwise non-nested.
func (x *Index) CanonicalParents() []string {
	set := make(map[string]bool)
	for _, paths := range x.groups {
		if len(paths) > 0 {
			set[filepath.Dir(paths[0])] = true
		}
	}

	out := make([]string, 0, len(set))
	for dir := range set {
		if !hasAncestorIn(dir, set) {
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}

func hasAncestorIn(dir string, set map[string]bool) bool {
	for p := filepath.Dir(dir); ; p = filepath.Dir(p) {
		if set[p] {
			return true
		}
		if next := filepath.Dir(p); next == p {
			return false
		}
	}
}

// candidate is a chart file found by the walk, waiting to be hashed.
type candidate struct {
	path  string
	size  int64
	mtime time.Time
}

type builder struct {
	root string
	opts Options
	log  *logging.Logger

	mu         sync.Mutex
	candidates []candidate
	errors     []types.ScanError

	found        atomic.Int64
	hashed       atomic.Int64
	dropped      atomic.Int64
	cacheHits    atomic.Int64
	current      atomic.Value
	walkComplete atomic.Bool
	lastProgress atomic.Int64
}

// Build walks root and hashes every chart file under it. It fails only when
// the root itself cannot be read or ctx is cancelled; unreadable files are
// dropped and reported through Errors.
func Build(ctx context.Context, root string, opts Options) (*Index, error) {
	start := time.Now()
	opts.applyDefaults()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, types.E(types.KindScan, "index", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, types.E(types.KindScan, "index", abs, err)
	}
	if !info.IsDir() {
		return nil, types.E(types.KindScan, "index", abs, errors.New("not a directory"))
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, types.E(types.KindScan, "index", abs, err)
	}

	b := &builder{root: abs, opts: opts, log: logging.Get("index")}
	b.current.Store(abs)

	if err := b.walk(ctx); err != nil {
		return nil, err
	}
	b.walkComplete.Store(true)
	b.progress(true)

	files, err := b.hashAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(b.errors, func(i, j int) bool { return b.errors[i].Path < b.errors[j].Path })

	x := &Index{
		root:   abs,
		files:  files,
		groups: make(types.HashGroup),
		errors: b.errors,
	}
	for _, f := range files {
		x.groups[f.Hash] = append(x.groups[f.Hash], f.Path)
		x.stats.Bytes += f.Size
	}
	x.stats.Files = len(files)
	x.stats.Groups = len(x.groups)
	x.stats.Duplicated = x.groups.Duplicated()
	x.stats.Dropped = int(b.dropped.Load())
	x.stats.CacheHits = int(b.cacheHits.Load())
	x.stats.Elapsed = time.Since(start)

	b.log.Info("index built",
		"root", abs,
		"files", x.stats.Files,
		"groups", x.stats.Groups,
		"duplicated", x.stats.Duplicated,
		"dropped", x.stats.Dropped,
		"elapsed", x.stats.Elapsed.Round(time.Millisecond))
	return x, nil
}

func (b *builder) walk(ctx context.Context) error {
	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: b.opts.WalkWorkers,
	}

	err := fastwalk.Walk(&conf, b.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			b.drop(path, err)
			if d != nil && d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if path == b.root {
			return nil
		}

		if b.excluded(path, d.Name()) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			b.current.Store(path)
			b.progress(false)
			return nil
		}
		if !types.IsChartFile(d.Name()) {
			return nil
		}

		var info fs.FileInfo
		switch {
		case d.Type().IsRegular():
			info, err = d.Info()
		case d.Type()&fs.ModeSymlink != 0 && b.opts.FollowLink != nil && b.opts.FollowLink(path):
			info, err = os.Stat(path)
			if err == nil && !info.Mode().IsRegular() {
				return nil
			}
		default:
			return nil
		}
		if err != nil {
			b.drop(path, err)
			return nil
		}

		b.mu.Lock()
		b.candidates = append(b.candidates, candidate{path: path, size: info.Size(), mtime: info.ModTime()})
		b.mu.Unlock()
		b.found.Add(1)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return types.E(types.KindScan, "walk", b.root, err)
	}
	return nil
}

func (b *builder) excluded(path, name string) bool {
	if strings.HasPrefix(name, ".") || name == recycleBin {
		return true
	}
	for _, pattern := range b.opts.Exclude {
		if matchesPattern(path, name, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks a path against one exclusion pattern: a path prefix,
// a glob on the base name, or a glob on the full path.
func matchesPattern(path, name, pattern string) bool {
	if pattern == "" {
		return false
	}
	if path == pattern || strings.HasPrefix(path, pattern+string(filepath.Separator)) {
		return true
	}
	if ok, err := filepath.Match(pattern, name); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true
	}
	return false
}

func (b *builder) hashAll(ctx context.Context) ([]types.ChartFile, error) {
	sort.Slice(b.candidates, func(i, j int) bool { return b.candidates[i].path < b.candidates[j].path })

	results := make([]types.ChartFile, len(b.candidates))
	ok := make([]bool, len(b.candidates))

	var fresh map[string]hashcache.Entry
	var freshMu sync.Mutex
	if b.opts.Cache != nil {
		fresh = make(map[string]hashcache.Entry)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.HashWorkers)

	for i, c := range b.candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b.current.Store(c.path)

			hash, cached := b.cached(c)
			if !cached {
				var err error
				hash, err = HashFile(c.path)
				if err != nil {
					b.drop(c.path, err)
					return nil
				}
				if fresh != nil {
					freshMu.Lock()
					fresh[c.path] = hashcache.Entry{Size: c.size, Mtime: c.mtime.UnixNano(), Hash: hash}
					freshMu.Unlock()
				}
			}

			results[i] = types.ChartFile{
				Path: c.path,
				Ext:  strings.ToLower(filepath.Ext(c.path)),
				Hash: hash,
				Size: c.size,
			}
			ok[i] = true
			b.hashed.Add(1)
			b.progress(false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		if err := b.opts.Cache.PutBatch(fresh); err != nil {
			b.log.Warn("hash cache update failed", "err", err)
		}
	}

	files := make([]types.ChartFile, 0, len(results))
	for i, f := range results {
		if ok[i] {
			files = append(files, f)
		}
	}
	return files, nil
}

func (b *builder) cached(c candidate) (string, bool) {
	if b.opts.Cache == nil {
		return "", false
	}
	hash, err := b.opts.Cache.Lookup(c.path, c.size, c.mtime)
	if err != nil {
		if !errors.Is(err, hashcache.ErrNotFound) {
			b.log.Debug("hash cache lookup failed", "path", c.path, "err", err)
		}
		return "", false
	}
	b.cacheHits.Add(1)
	return hash, true
}

func (b *builder) drop(path string, err error) {
	b.dropped.Add(1)
	b.log.Warn("skipping unreadable entry", "path", path, "err", err)

	b.mu.Lock()
	b.errors = append(b.errors, types.ScanError{Path: path, Error: err.Error()})
	b.mu.Unlock()
}

// progress reports at most every 50ms unless forced.
func (b *builder) progress(force bool) {
	if b.opts.OnProgress == nil {
		return
	}
	now := time.Now().UnixMilli()
	last := b.lastProgress.Load()
	if !force && (now-last < 50 || !b.lastProgress.CompareAndSwap(last, now)) {
		return
	}
	if force {
		b.lastProgress.Store(now)
	}

	current, _ := b.current.Load().(string)
	b.opts.OnProgress(Progress{
		FilesFound:   b.found.Load(),
		FilesHashed:  b.hashed.Load(),
		Dropped:      b.dropped.Load(),
		CacheHits:    b.cacheHits.Load(),
		CurrentPath:  current,
		WalkComplete: b.walkComplete.Load(),
	})
}

// HashFile returns the lowercase hex SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
