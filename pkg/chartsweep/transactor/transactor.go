// Package transactor is the single point of filesystem mutation in chartsweep.
// Every merge, rename, prune and removal goes through a Transactor, which
// guarantees that no file is dropped unless an identical copy already exists at
// the destination, and which short-circuits all mutation in dry-run mode.
package transactor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/trash"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// NoiseFiles are desktop metadata files that are never moved. They are left
// behind and removed together with the emptied source tree.
var NoiseFiles = map[string]bool{
	"desktop.ini": true,
	".DS_Store":   true,
}

var (
	errNotDir       = errors.New("not a directory")
	errNestedTarget = errors.New("destination is inside source")
)

// Transactor performs filesystem mutations.
type Transactor struct {
	// DryRun logs and journals every mutation without performing it.
	DryRun bool

	// Recorder receives one action per mutation. May be nil.
	Recorder manifest.Recorder

	log *logging.Logger
}

// New returns a Transactor.
func New(dryRun bool, rec manifest.Recorder) *Transactor {
	return &Transactor{
		DryRun:   dryRun,
		Recorder: rec,
		log:      logging.Get("transactor"),
	}
}

func (t *Transactor) record(op manifest.OperationType, src, dst string, err error) {
	if t.Recorder == nil {
		return
	}
	a := manifest.Action{Op: op, Source: src, Target: dst}
	if err != nil {
		a.Error = err.Error()
	}
	t.Recorder.Record(a)
}

// MergeInto moves every entry under source into dest, creating dest when
// absent, and then removes the source tree. Files already present at dest with
// identical content are dropped from source; files with different content are
// kept beside the existing one under a numbered name. Any I/O error aborts the
// merge and leaves the source tree in place.
func (t *Transactor) MergeInto(source, dest string) error {
	source = filepath.Clean(source)
	dest = filepath.Clean(dest)

	info, err := os.Stat(source)
	if err != nil {
		return types.E(types.KindDirectory, "merge", source, err)
	}
	if !info.IsDir() {
		return types.E(types.KindDirectory, "merge", source, errNotDir)
	}
	if source == dest {
		t.log.Debug("merge into itself skipped", "folder", source)
		return nil
	}
	if IsWithin(dest, source) {
		return types.E(types.KindDirectory, "merge", source, fmt.Errorf("%w: %s", errNestedTarget, dest))
	}
	if di, err := os.Stat(dest); err == nil && !di.IsDir() {
		return types.E(types.KindDirectory, "merge", dest, errNotDir)
	}

	if t.DryRun {
		t.log.Info("would merge", "source", source, "target", dest)
		t.record(manifest.OpMerge, source, dest, nil)
		return nil
	}

	if err := t.mergeTree(source, dest); err != nil {
		t.record(manifest.OpMerge, source, dest, err)
		return types.E(types.KindDirectory, "merge", source, err)
	}
	if err := os.RemoveAll(source); err != nil {
		t.record(manifest.OpMerge, source, dest, err)
		return types.E(types.KindDirectory, "merge", source, fmt.Errorf("removing merged source: %w", err))
	}

	t.log.Info("merged", "source", source, "target", dest)
	t.record(manifest.OpMerge, source, dest, nil)
	return nil
}

func (t *Transactor) mergeTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	for _, e := range entries {
		name := e.Name()
		from := filepath.Join(src, name)
		to := filepath.Join(dst, name)

		if e.IsDir() {
			if err := t.mergeTree(from, to); err != nil {
				return err
			}
			continue
		}
		if NoiseFiles[name] {
			continue
		}
		if err := t.placeFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

// placeFile moves one file to dst without overwriting anything.
func (t *Transactor) placeFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		same, err := sameContent(src, dst)
		if err != nil {
			return err
		}
		if same {
			t.log.Debug("identical file already at target", "file", dst)
			return nil
		}
		alt, err := freeName(dst)
		if err != nil {
			return err
		}
		t.log.Warn("target file differs, keeping both", "file", dst, "kept_as", filepath.Base(alt))
		dst = alt
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", dst, err)
	}

	return t.moveFile(src, dst)
}

// moveFile renames src to dst, falling back to a byte copy when the rename
// fails. The source is left for the caller's final tree removal.
func (t *Transactor) moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if isCrossDevice(err) {
		t.log.Debug("cross-device rename, copying", "file", src)
	} else {
		t.log.Debug("rename failed, copying", "file", src, "err", err)
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}

// Move renames source to dest. The destination must not exist.
func (t *Transactor) Move(source, dest string) error {
	source = filepath.Clean(source)
	dest = filepath.Clean(dest)

	if _, err := os.Stat(source); err != nil {
		return types.E(types.KindDirectory, "move", source, err)
	}
	if source == dest {
		return nil
	}
	if _, err := os.Lstat(dest); err == nil {
		return types.E(types.KindConflict, "move", dest, os.ErrExist)
	} else if !os.IsNotExist(err) {
		return types.E(types.KindDirectory, "move", dest, err)
	}

	if t.DryRun {
		t.log.Info("would move", "source", source, "target", dest)
		t.record(manifest.OpMove, source, dest, nil)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.record(manifest.OpMove, source, dest, err)
		return types.E(types.KindDirectory, "move", dest, err)
	}
	if err := os.Rename(source, dest); err != nil {
		if !isCrossDevice(err) {
			t.record(manifest.OpMove, source, dest, err)
			return types.E(types.KindDirectory, "move", source, err)
		}
		// Cross-device: a merge into the absent destination is a copying move.
		if err := t.mergeTree(source, dest); err != nil {
			t.record(manifest.OpMove, source, dest, err)
			return types.E(types.KindDirectory, "move", source, err)
		}
		if err := os.RemoveAll(source); err != nil {
			t.record(manifest.OpMove, source, dest, err)
			return types.E(types.KindDirectory, "move", source, err)
		}
	}

	t.log.Info("moved", "source", source, "target", dest)
	t.record(manifest.OpMove, source, dest, nil)
	return nil
}

// PruneEmpty removes the immediate subdirectories of dir that have no
// entries. It is not recursive. It returns the number of directories removed
// (or that would be removed in dry-run mode).
func (t *Transactor) PruneEmpty(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, types.E(types.KindDirectory, "prune", dir, err)
	}

	pruned := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		children, err := os.ReadDir(sub)
		if err != nil {
			t.log.Warn("cannot read directory while pruning", "dir", sub, "err", err)
			continue
		}
		if len(children) > 0 {
			continue
		}
		if !t.DryRun {
			if err := os.Remove(sub); err != nil {
				t.record(manifest.OpPrune, sub, "", err)
				t.log.Warn("cannot remove empty directory", "dir", sub, "err", err)
				continue
			}
		}
		pruned++
		t.log.Debug("pruned empty directory", "dir", sub)
		t.record(manifest.OpPrune, sub, "", nil)
	}
	return pruned, nil
}

// Discard removes a file, or moves it to the trash when useTrash is set.
func (t *Transactor) Discard(path string, useTrash bool) error {
	if t.DryRun {
		t.log.Info("would remove", "path", path, "trash", useTrash)
		t.record(manifest.OpRemove, path, "", nil)
		return nil
	}

	var err error
	if useTrash {
		err = trash.MoveToTrash(path)
	} else {
		err = os.Remove(path)
	}
	t.record(manifest.OpRemove, path, "", err)
	if err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// Apply runs fn as one recorded action. In dry-run mode fn is skipped and
// the action is only logged and recorded.
func (t *Transactor) Apply(op manifest.OperationType, source, target string, fn func() error) error {
	if t.DryRun {
		t.log.Info("would "+string(op), "source", source, "target", target)
		t.record(op, source, target, nil)
		return nil
	}
	err := fn()
	t.record(op, source, target, err)
	return err
}

// WriteFile atomically replaces path with data.
func (t *Transactor) WriteFile(path string, data []byte) error {
	if t.DryRun {
		t.log.Info("would write", "path", path, "bytes", len(data))
		t.record(manifest.OpWrite, path, "", nil)
		return nil
	}

	err := writeAtomic(path, data)
	t.record(manifest.OpWrite, path, "", err)
	return err
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// IsWithin reports whether path is root or lies below it.
func IsWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// freeName returns the first "stem~N.ext" sibling of path that does not exist.
func freeName(path string) (string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; i < 10000; i++ {
		candidate := fmt.Sprintf("%s~%d%s", stem, i, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s", path)
}

func sameContent(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	if ia.IsDir() || ib.IsDir() || ia.Size() != ib.Size() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA == io.EOF || errA == io.ErrUnexpectedEOF {
			return errB == io.EOF || errB == io.ErrUnexpectedEOF, nil
		}
		if errA != nil {
			return false, errA
		}
		if errB != nil {
			return false, errB
		}
	}
}

// copyFile copies src to dst, preserving mode and modification time.
// Symlinks are recreated rather than followed.
func copyFile(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
