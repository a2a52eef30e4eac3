// Package sandbox mirrors a directory tree into a temporary location so that a
// multi-stage pipeline can run against it for real while the original tree
// stays untouched. Directories are recreated and every other entry becomes a
// symlink to the original, so stages that move entries only move links.
package sandbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
)

type mount struct {
	orig   string
	mirror string
}

// Sandbox is a set of mirrored trees under one temporary directory.
type Sandbox struct {
	base    string
	workers int
	mounts  []mount
	log     *logging.Logger
}

// New creates an empty sandbox. Call Close to remove it.
func New(workers int) (*Sandbox, error) {
	base, err := os.MkdirTemp("", "chartsweep-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	return &Sandbox{base: base, workers: workers, log: logging.Get("sandbox")}, nil
}

// Mount mirrors the tree at orig and returns the mirror path. Mounting a path
// that lies inside an existing mount returns the corresponding mirror path
// without copying anything. A path that does not exist yet yields an empty
// mirror directory.
func (s *Sandbox) Mount(ctx context.Context, orig string) (string, error) {
	orig, err := filepath.Abs(orig)
	if err != nil {
		return "", err
	}
	if p, ok := s.toMirror(orig); ok {
		return p, nil
	}

	mirror := filepath.Join(s.base, strconv.Itoa(len(s.mounts)), filepath.Base(orig))
	if err := os.MkdirAll(mirror, 0o755); err != nil {
		return "", fmt.Errorf("creating mirror: %w", err)
	}
	if _, err := os.Stat(orig); err == nil {
		if err := s.mirrorTree(ctx, orig, mirror); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	s.mounts = append(s.mounts, mount{orig: orig, mirror: mirror})
	s.log.Debug("mounted", "orig", orig, "mirror", mirror)
	return mirror, nil
}

func (s *Sandbox) mirrorTree(ctx context.Context, orig, mirror string) error {
	conf := fastwalk.Config{Follow: false, NumWorkers: s.workers}

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	err := fastwalk.Walk(&conf, orig, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entries are left out of the mirror; the index
			// reports them when it cannot see them either.
			s.log.Debug("not mirrored", "path", path, "err", err)
			return nil
		}
		rel, err := filepath.Rel(orig, path)
		if err != nil {
			fail(err)
			return nil
		}
		target := filepath.Join(mirror, rel)

		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				fail(err)
				return fastwalk.SkipDir
			}
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			fail(err)
			return nil
		}
		if err := os.Symlink(path, target); err != nil {
			fail(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if firstErr != nil {
		return fmt.Errorf("mirroring %s: %w", orig, firstErr)
	}
	return nil
}

func (s *Sandbox) toMirror(orig string) (string, bool) {
	for _, m := range s.mounts {
		if transactor.IsWithin(orig, m.orig) {
			rel, _ := filepath.Rel(m.orig, orig)
			return filepath.Join(m.mirror, rel), true
		}
	}
	return "", false
}

// Real translates a path inside the sandbox back to the real tree. Paths
// outside every mount are returned unchanged.
func (s *Sandbox) Real(path string) string {
	for _, m := range s.mounts {
		if transactor.IsWithin(path, m.mirror) {
			rel, _ := filepath.Rel(m.mirror, path)
			return filepath.Join(m.orig, rel)
		}
	}
	return path
}

// IsMirrorLink reports whether the symlink at path stands for a regular file
// of a mounted tree: it points straight at a non-link file inside a mount.
// A symlink of the original tree is mirrored as a link to that symlink and so
// is not a mirror link, which keeps a dry run blind to the same links a real
// run skips. Mirror links keep their target when a stage moves them.
func (s *Sandbox) IsMirrorLink(path string) bool {
	target, err := os.Readlink(path)
	if err != nil || !filepath.IsAbs(target) {
		return false
	}
	if _, ok := s.toMirror(target); !ok {
		return false
	}
	info, err := os.Lstat(target)
	return err == nil && info.Mode().IsRegular()
}

// Close removes the sandbox. The mirrored originals are not touched.
func (s *Sandbox) Close() error {
	return os.RemoveAll(s.base)
}
