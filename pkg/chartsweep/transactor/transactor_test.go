package transactor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

type recorder struct{ actions []manifest.Action }

func (r *recorder) Record(a manifest.Action) { r.actions = append(r.actions, a) }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestMergeInto_MovesEverything(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "SongA_dup")
	dst := filepath.Join(root, "SongA")

	writeFile(t, filepath.Join(src, "chart.bms"), "#TITLE x")
	writeFile(t, filepath.Join(src, "sub", "bgm.ogg"), "ogg")
	writeFile(t, filepath.Join(src, "desktop.ini"), "noise")
	writeFile(t, filepath.Join(dst, "existing.wav"), "wav")

	rec := &recorder{}
	tx := New(false, rec)
	require.NoError(t, tx.MergeInto(src, dst))

	assert.Equal(t, "#TITLE x", readFile(t, filepath.Join(dst, "chart.bms")))
	assert.Equal(t, "ogg", readFile(t, filepath.Join(dst, "sub", "bgm.ogg")))
	assert.Equal(t, "wav", readFile(t, filepath.Join(dst, "existing.wav")))
	assert.NoFileExists(t, filepath.Join(dst, "desktop.ini"))
	assert.NoDirExists(t, src)

	require.Len(t, rec.actions, 1)
	assert.Equal(t, manifest.OpMerge, rec.actions[0].Op)
	assert.Empty(t, rec.actions[0].Error)
}

func TestMergeInto_CreatesDest(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a")
	dst := filepath.Join(root, "out", "nested", "a")
	writeFile(t, filepath.Join(src, "x.bme"), "x")

	require.NoError(t, New(false, nil).MergeInto(src, dst))
	assert.FileExists(t, filepath.Join(dst, "x.bme"))
}

func TestMergeInto_ExistingFiles(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")

	writeFile(t, filepath.Join(src, "same.bms"), "identical")
	writeFile(t, filepath.Join(dst, "same.bms"), "identical")
	writeFile(t, filepath.Join(src, "readme.txt"), "incoming")
	writeFile(t, filepath.Join(dst, "readme.txt"), "original")

	require.NoError(t, New(false, nil).MergeInto(src, dst))

	assert.Equal(t, "identical", readFile(t, filepath.Join(dst, "same.bms")))
	assert.NoFileExists(t, filepath.Join(dst, "same~1.bms"))
	assert.Equal(t, "original", readFile(t, filepath.Join(dst, "readme.txt")))
	assert.Equal(t, "incoming", readFile(t, filepath.Join(dst, "readme~1.txt")))
	assert.NoDirExists(t, src)
}

func TestMergeInto_MissingSource(t *testing.T) {
	root := t.TempDir()
	err := New(false, nil).MergeInto(filepath.Join(root, "gone"), filepath.Join(root, "dst"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDirectory))
	assert.NoDirExists(t, filepath.Join(root, "dst"))
}

func TestMergeInto_SourceIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "file.bms"), "x")

	err := New(false, nil).MergeInto(filepath.Join(root, "file.bms"), filepath.Join(root, "dst"))
	assert.Equal(t, types.KindDirectory, types.KindOf(err))
}

func TestMergeInto_DestInsideSource(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a")
	writeFile(t, filepath.Join(src, "x.bms"), "x")

	err := New(false, nil).MergeInto(src, filepath.Join(src, "inner"))
	assert.Equal(t, types.KindDirectory, types.KindOf(err))
	assert.FileExists(t, filepath.Join(src, "x.bms"))
}

func TestMergeInto_DryRun(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "a.bms"), "a")

	rec := &recorder{}
	require.NoError(t, New(true, rec).MergeInto(src, dst))

	assert.FileExists(t, filepath.Join(src, "a.bms"))
	assert.NoDirExists(t, dst)
	require.Len(t, rec.actions, 1)
}

func TestMove(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "old")
	writeFile(t, filepath.Join(src, "a.bms"), "a")

	tx := New(false, nil)
	require.NoError(t, tx.Move(src, filepath.Join(root, "[Artist] Title")))
	assert.FileExists(t, filepath.Join(root, "[Artist] Title", "a.bms"))
	assert.NoDirExists(t, src)
}

func TestMove_Conflict(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "old")
	taken := filepath.Join(root, "taken")
	writeFile(t, filepath.Join(src, "a.bms"), "a")
	writeFile(t, filepath.Join(taken, "b.bms"), "b")

	err := New(false, nil).Move(src, taken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))
	assert.FileExists(t, filepath.Join(src, "a.bms"))
	assert.FileExists(t, filepath.Join(taken, "b.bms"))
	assert.NoFileExists(t, filepath.Join(taken, "a.bms"))
}

func TestPruneEmpty_SingleLevel(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "outer", "inner"), 0o755))
	writeFile(t, filepath.Join(root, "full", "a.bms"), "a")

	n, err := New(false, nil).PruneEmpty(root)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.NoDirExists(t, filepath.Join(root, "empty"))
	assert.DirExists(t, filepath.Join(root, "outer", "inner"))
	assert.DirExists(t, filepath.Join(root, "full"))
}

func TestPruneEmpty_DryRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	n, err := New(true, nil).PruneEmpty(root)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.DirExists(t, filepath.Join(root, "empty"))
}

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.bms")
	dst := filepath.Join(root, "b.bms")
	writeFile(t, src, "payload")

	require.NoError(t, copyFile(src, dst))
	assert.Equal(t, "payload", readFile(t, dst))
	assert.Error(t, copyFile(src, dst), "copy must not overwrite")

	link := filepath.Join(root, "link.bms")
	require.NoError(t, os.Symlink(src, link))
	linkCopy := filepath.Join(root, "link2.bms")
	require.NoError(t, copyFile(link, linkCopy))
	target, err := os.Readlink(linkCopy)
	require.NoError(t, err)
	assert.Equal(t, src, target)
}

func TestWriteFileAndDiscard(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "tables", "default.json")

	dry := New(true, nil)
	require.NoError(t, dry.WriteFile(path, []byte("{}")))
	assert.NoFileExists(t, path)

	tx := New(false, nil)
	require.NoError(t, tx.WriteFile(path, []byte("{}")))
	assert.Equal(t, "{}", readFile(t, path))

	require.NoError(t, tx.Discard(path, false))
	assert.NoFileExists(t, path)
}

func TestIsWithin(t *testing.T) {
	assert.True(t, IsWithin("/a/b", "/a"))
	assert.True(t, IsWithin("/a", "/a"))
	assert.False(t, IsWithin("/ab", "/a"))
	assert.False(t, IsWithin("/a", "/a/b"))
	assert.True(t, IsWithin("/a/..b", "/a"))
}

func TestApply(t *testing.T) {
	rec := &recorder{}
	calls := 0
	fn := func() error { calls++; return errors.New("boom") }

	require.NoError(t, New(true, rec).Apply(manifest.OpExtract, "a.zip", "dir", fn))
	assert.Zero(t, calls)

	err := New(false, rec).Apply(manifest.OpExtract, "a.zip", "dir", fn)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, calls)

	require.Len(t, rec.actions, 2)
	assert.Empty(t, rec.actions[0].Error)
	assert.Equal(t, "boom", rec.actions[1].Error)
}
