package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/hashcache"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestBuild_GroupsByContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "SongA [7]", "chart.bms"), "same")
	writeFile(t, filepath.Join(root, "SongA_dup", "chart.bms"), "same")
	writeFile(t, filepath.Join(root, "SongB", "hyper.BME"), "other")
	writeFile(t, filepath.Join(root, "SongB", "bgm.ogg"), "audio")

	idx, err := Build(context.Background(), root, Options{})
	require.NoError(t, err)

	groups := idx.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, []string{
		filepath.Join(root, "SongA [7]", "chart.bms"),
		filepath.Join(root, "SongA_dup", "chart.bms"),
	}, groups[digest("same")])
	assert.Equal(t, []string{filepath.Join(root, "SongB", "hyper.BME")}, groups[digest("other")])

	assert.True(t, idx.Has(digest("other")))
	assert.False(t, idx.Has(digest("audio")))

	st := idx.Stats()
	assert.Equal(t, 3, st.Files)
	assert.Equal(t, 1, st.Duplicated)
	assert.Equal(t, 0, st.Dropped)
	assert.Equal(t, ".bme", idx.Files()[2].Ext)
}

func TestBuild_Exclusions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".hidden", "a.bms"), "a")
	writeFile(t, filepath.Join(root, "$RECYCLE.BIN", "b.bms"), "b")
	writeFile(t, filepath.Join(root, "pack", ".c.bms"), "c")
	writeFile(t, filepath.Join(root, "pack", "sub", "$RECYCLE.BIN", "d.bms"), "d")
	writeFile(t, filepath.Join(root, "tmp", "e.bms"), "e")
	writeFile(t, filepath.Join(root, "keep", "f.pms"), "f")

	idx, err := Build(context.Background(), root, Options{Exclude: []string{"tmp"}})
	require.NoError(t, err)

	require.Len(t, idx.Files(), 1)
	assert.Equal(t, filepath.Join(root, "keep", "f.pms"), idx.Files()[0].Path)
}

func TestBuild_HiddenRootAllowed(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".library")
	writeFile(t, filepath.Join(root, "song", "a.bms"), "a")

	idx, err := Build(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Len(t, idx.Files(), 1)
}

func TestBuild_RootErrors(t *testing.T) {
	_, err := Build(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrScan))

	file := filepath.Join(t.TempDir(), "x.bms")
	writeFile(t, file, "x")
	_, err = Build(context.Background(), file, Options{})
	assert.Equal(t, types.KindScan, types.KindOf(err))
}

func TestBuild_UnreadableFileDropped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "song", "locked.bms")
	writeFile(t, locked, "secret")
	writeFile(t, filepath.Join(root, "song", "open.bms"), "open")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	idx, err := Build(context.Background(), root, Options{})
	require.NoError(t, err)

	assert.Len(t, idx.Files(), 1)
	assert.Equal(t, 1, idx.Stats().Dropped)
	require.Len(t, idx.Errors(), 1)
	assert.Equal(t, locked, idx.Errors()[0].Path)
}

func TestBuild_FollowLink(t *testing.T) {
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "a.bms"), "linked")

	mirror := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mirror, "song"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(target, "a.bms"), filepath.Join(mirror, "song", "a.bms")))

	idx, err := Build(context.Background(), mirror, Options{})
	require.NoError(t, err)
	assert.Empty(t, idx.Files(), "symlinks are skipped by default")

	idx, err = Build(context.Background(), mirror, Options{FollowLink: func(string) bool { return false }})
	require.NoError(t, err)
	assert.Empty(t, idx.Files(), "rejected links are skipped")

	idx, err = Build(context.Background(), mirror, Options{FollowLink: func(string) bool { return true }})
	require.NoError(t, err)
	require.Len(t, idx.Files(), 1)
	assert.Equal(t, digest("linked"), idx.Files()[0].Hash)
}

func TestBuild_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "s", "a.bms"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_ProgressReported(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "s", "a.bms"), "a")

	var calls atomic.Int64
	var sawComplete atomic.Bool
	_, err := Build(context.Background(), root, Options{OnProgress: func(p Progress) {
		calls.Add(1)
		if p.WalkComplete {
			sawComplete.Store(true)
		}
	}})
	require.NoError(t, err)
	assert.Positive(t, calls.Load())
	assert.True(t, sawComplete.Load())
}

func TestBuild_UsesHashCache(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "s", "a.bms")
	writeFile(t, path, "content")

	store, err := hashcache.Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer store.Close()

	first, err := Build(context.Background(), root, Options{Cache: store})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Stats().CacheHits)

	second, err := Build(context.Background(), root, Options{Cache: store})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Stats().CacheHits)
	assert.Equal(t, first.Groups(), second.Groups())

	// A rewritten file with a new mtime must be re-hashed.
	writeFile(t, path, "changed")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	third, err := Build(context.Background(), root, Options{Cache: store})
	require.NoError(t, err)
	assert.Equal(t, 0, third.Stats().CacheHits)
	assert.True(t, third.Has(digest("changed")))
}

func TestCanonicalParents_CollapsesNesting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Outer", "a.bms"), "a")
	writeFile(t, filepath.Join(root, "Outer", "Inner", "b.bms"), "b")
	writeFile(t, filepath.Join(root, "Outer2", "c.bms"), "c")
	writeFile(t, filepath.Join(root, "Deep", "x", "d.bms"), "d")
	writeFile(t, filepath.Join(root, "Deep", "x", "y", "e.bms"), "e")

	idx, err := Build(context.Background(), root, Options{})
	require.NoError(t, err)

	parents := idx.CanonicalParents()
	assert.Equal(t, []string{
		filepath.Join(root, "Deep", "x"),
		filepath.Join(root, "Outer"),
		filepath.Join(root, "Outer2"),
	}, parents)

	for i, a := range parents {
		for j, b := range parents {
			if i != j {
				assert.False(t, strings.HasPrefix(b, a+string(filepath.Separator)), "%s is nested in %s", b, a)
			}
		}
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		path, pattern string
		want          bool
	}{
		{"/lib/tmp/x.bms", "/lib/tmp", true},
		{"/lib/tmpx/x.bms", "/lib/tmp", false},
		{"/lib/a/old.bms", "old.*", true},
		{"/lib/a/new.bms", "old.*", false},
		{"/lib/a", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.path, filepath.Base(tt.path), tt.pattern), "%s ~ %s", tt.path, tt.pattern)
	}
}
