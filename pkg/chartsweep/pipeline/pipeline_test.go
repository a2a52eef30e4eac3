package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/merge"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func header(artist, title string) string {
	return "#PLAYER 1\n#ARTIST " + artist + "\n#TITLE " + title + "\n"
}

// snapshot maps every entry under root to its content digest, or "dir".
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			out[rel] = "dir"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		out[rel] = hex.EncodeToString(sum[:])
		return nil
	})
	require.NoError(t, err)
	return out
}

type recorder struct {
	mu      sync.Mutex
	actions []manifest.Action
}

func (r *recorder) Record(a manifest.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func library(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pack", "song1", "a.bms"), header("Foo", "Bar [NORMAL]"))
	writeFile(t, filepath.Join(root, "pack", "song1", "bgm.ogg"), "ogg")
	writeFile(t, filepath.Join(root, "song1_copy", "a.bms"), header("Foo", "Bar [NORMAL]"))
	writeFile(t, filepath.Join(root, "song1_copy", "bgm.ogg"), "ogg")
	writeFile(t, filepath.Join(root, "other", "x.bms"), header("Baz", "Qux"))
	return root
}

func TestRun_DuplicateScenario(t *testing.T) {
	root := t.TempDir()
	chart := "#PLAYER 1\n#BPM 140\n"
	for _, dir := range []string{"SongA [7]", "SongA_dup"} {
		writeFile(t, filepath.Join(root, dir, "chart.bms"), chart)
		writeFile(t, filepath.Join(root, dir, "bgm.ogg"), "ogg")
	}

	rep, err := Run(context.Background(), Options{Root: root, Threshold: 80})
	require.NoError(t, err)

	require.NotNil(t, rep.Merge)
	require.Len(t, rep.Merge.Resolved.Edges, 1)
	assert.Equal(t, []types.MergePair{{
		Source: filepath.Join(root, "SongA_dup"),
		Target: filepath.Join(root, "SongA [7]"),
	}}, rep.Merge.Merged)

	assert.NoDirExists(t, filepath.Join(root, "SongA_dup"))
	after := snapshot(t, root)
	sum := sha256.Sum256([]byte(chart))
	assert.Equal(t, map[string]string{
		".":                   "dir",
		"SongA [7]":           "dir",
		"SongA [7]/chart.bms": hex.EncodeToString(sum[:]),
		"SongA [7]/bgm.ogg":   after["SongA [7]/bgm.ogg"],
	}, after)
	assert.Zero(t, rep.Failed())
}

func TestRun_Organize(t *testing.T) {
	root := library(t)

	rep, err := Run(context.Background(), Options{Root: root, Threshold: 80})
	require.NoError(t, err)

	assert.Len(t, rep.Rename.Renames, 3)
	assert.Equal(t, []types.MergePair{{
		Source: filepath.Join(root, "pack", "[Foo] Bar"),
		Target: filepath.Join(root, "[Foo] Bar"),
	}}, rep.Merge.Merged)
	assert.Empty(t, rep.Reconstruct.Moves)
	assert.Equal(t, 2, rep.Reconstruct.InPlace)

	assert.FileExists(t, filepath.Join(root, "[Foo] Bar", "a.bms"))
	assert.FileExists(t, filepath.Join(root, "[Foo] Bar", "bgm.ogg"))
	assert.FileExists(t, filepath.Join(root, "[Baz] Qux", "x.bms"))
	assert.NoDirExists(t, filepath.Join(root, "pack"))
}

func TestRun_Idempotent(t *testing.T) {
	root := library(t)

	_, err := Run(context.Background(), Options{Root: root, Threshold: merge.DefaultThreshold, Shard: true})
	require.NoError(t, err)
	before := snapshot(t, root)

	second, err := Run(context.Background(), Options{Root: root, Threshold: merge.DefaultThreshold, Shard: true})
	require.NoError(t, err)
	assert.Zero(t, second.Changes())
	assert.Empty(t, second.Merge.Resolved.Pairs)
	assert.Equal(t, before, snapshot(t, root))
}

func TestRun_DryRunParity(t *testing.T) {
	root := library(t)
	before := snapshot(t, root)

	rec := &recorder{}
	dry, err := Run(context.Background(), Options{Root: root, Threshold: merge.DefaultThreshold, DryRun: true, Shard: true, Recorder: rec})
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(t, root), "dry run must not touch the tree")
	assert.True(t, dry.DryRun)

	require.NotEmpty(t, rec.actions)
	for _, a := range rec.actions {
		assert.Contains(t, a.Source, root, "journal paths are real paths")
	}

	live, err := Run(context.Background(), Options{Root: root, Threshold: merge.DefaultThreshold, Shard: true})
	require.NoError(t, err)

	assert.Equal(t, live.Rename.Renames, dry.Rename.Renames)
	assert.Equal(t, live.Merge.Merged, dry.Merge.Merged)
	assert.Equal(t, live.Reconstruct.Moves, dry.Reconstruct.Moves)
	assert.Equal(t, live.Pruned, dry.Pruned)
	assert.NotEqual(t, before, snapshot(t, root))
}

func TestRun_DryRunParityWithSymlinkedChart(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "chart.bms"), "#PLAYER 1\n")
	writeFile(t, filepath.Join(root, "A", "bgm.ogg"), "ogg")
	writeFile(t, filepath.Join(root, "B", "bgm.ogg"), "ogg")
	require.NoError(t, os.Symlink(filepath.Join(root, "A", "chart.bms"), filepath.Join(root, "B", "chart.bms")))
	before := snapshot(t, root)

	opts := Options{Root: root, Threshold: merge.DefaultThreshold, Stages: []Stage{StageMerge}}
	opts.DryRun = true
	dry, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(t, root))

	opts.DryRun = false
	live, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Empty(t, live.Merge.Merged, "symlinked charts are not indexed")
	assert.Equal(t, live.Merge.Merged, dry.Merge.Merged)
	assert.Equal(t, before, snapshot(t, root))
}

func TestRun_DryRunWithSeparateDest(t *testing.T) {
	root := library(t)
	dest := filepath.Join(t.TempDir(), "library")
	before := snapshot(t, root)

	rep, err := Run(context.Background(), Options{Root: root, Threshold: merge.DefaultThreshold, Dest: dest, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(t, root))
	assert.NoDirExists(t, dest)
	require.NotEmpty(t, rep.Reconstruct.Moves)
	for _, m := range rep.Reconstruct.Moves {
		assert.Equal(t, dest, filepath.Dir(m.Target))
	}
}

func TestRun_SelectedStages(t *testing.T) {
	root := library(t)

	rep, err := Run(context.Background(), Options{Root: root, Threshold: merge.DefaultThreshold, Stages: []Stage{StageMerge}})
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageMerge}, rep.Stages)
	assert.Nil(t, rep.Rename)
	assert.Nil(t, rep.Reconstruct)
	require.Len(t, rep.Merge.Merged, 1)
	assert.Equal(t, filepath.Join(root, "song1_copy"), rep.Merge.Merged[0].Source)
	assert.DirExists(t, filepath.Join(root, "other"))
}

func TestRun_StageOrderNormalized(t *testing.T) {
	var seen []Stage
	root := library(t)
	_, err := Run(context.Background(), Options{
		Root:    root,
		Stages:  []Stage{StageReconstruct, StageRename},
		DryRun:  true,
		OnStage: func(s Stage) { seen = append(seen, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageRename, StageReconstruct}, seen)
}

func TestRun_MissingRoot(t *testing.T) {
	_, err := Run(context.Background(), Options{Root: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, types.ErrScan)
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("merge")
	require.NoError(t, err)
	assert.Equal(t, StageMerge, s)

	_, err = ParseStage("bogus")
	assert.Error(t, err)
}
