package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func build(t *testing.T, root string) *index.Index {
	t.Helper()
	idx, err := index.Build(context.Background(), root, index.Options{})
	require.NoError(t, err)
	return idx
}

func set(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func TestResolve_DuplicateFolders(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"SongA [7]", "SongA_dup"} {
		writeFile(t, filepath.Join(root, dir, "chart.bms"), "#TITLE SongA")
		writeFile(t, filepath.Join(root, dir, "bgm.ogg"), "ogg")
	}

	res := NewResolver(80, 0).Resolve(build(t, root))

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, types.MergePair{
		Source: filepath.Join(root, "SongA_dup"),
		Target: filepath.Join(root, "SongA [7]"),
	}, res.Pairs[0])
	require.Len(t, res.Edges, 1)
	assert.Equal(t, 100, res.Edges[0].Confidence)
	assert.Empty(t, res.Anomalies)
	assert.Equal(t, 1, res.Compared)
}

func TestResolve_BelowThreshold(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "chart.bms"), "shared")
	writeFile(t, filepath.Join(root, "B", "chart.bms"), "shared")
	for _, n := range []string{"1.wav", "2.wav", "3.wav", "4.wav"} {
		writeFile(t, filepath.Join(root, "A", n), n)
	}
	for _, n := range []string{"w.ogg", "x.ogg", "y.ogg", "z.ogg"} {
		writeFile(t, filepath.Join(root, "B", n), n)
	}

	res := NewResolver(80, 0).Resolve(build(t, root))
	assert.Empty(t, res.Pairs)
	assert.Equal(t, 1, res.Compared)

	lenient := NewResolver(20, 0).Resolve(build(t, root))
	assert.Len(t, lenient.Pairs, 1)
}

func TestResolve_SubdirectoriesIgnored(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"A", "B"} {
		writeFile(t, filepath.Join(root, dir, "chart.bms"), "same")
		writeFile(t, filepath.Join(root, dir, "bgm.ogg"), "ogg")
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "B", "bga"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "B", "keysounds"), 0o755))

	res := NewResolver(80, 0).Resolve(build(t, root))

	require.Len(t, res.Pairs, 1)
	assert.Equal(t, types.MergePair{
		Source: filepath.Join(root, "B"),
		Target: filepath.Join(root, "A"),
	}, res.Pairs[0])
	require.Len(t, res.Edges, 1)
	assert.Equal(t, 100, res.Edges[0].Confidence)
}

func TestListNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.bms"), "a")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bga"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.bms"), filepath.Join(dir, "link.bms")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "bga"), filepath.Join(dir, "dirlink")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "dangling")))

	names, err := listNames(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.bms", "link.bms"}, names)
}

func TestResolve_ThresholdZero(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "chart.bms"), "shared")
	writeFile(t, filepath.Join(root, "B", "chart.bms"), "shared")
	writeFile(t, filepath.Join(root, "A", "bgm.ogg"), "a")
	writeFile(t, filepath.Join(root, "B", "bgm.ogg"), "b")
	for _, n := range []string{"1.wav", "2.wav", "3.wav", "4.wav"} {
		writeFile(t, filepath.Join(root, "A", n), n)
	}
	for _, n := range []string{"w.ogg", "x.ogg", "y.ogg", "z.ogg"} {
		writeFile(t, filepath.Join(root, "B", n), n)
	}

	res := NewResolver(0, 0).Resolve(build(t, root))
	require.Len(t, res.Pairs, 1, "zero threshold merges every linked pair")
	assert.Equal(t, 33, res.Edges[0].Confidence)

	res = NewResolver(-1, 0).Resolve(build(t, root))
	assert.Empty(t, res.Pairs, "negative threshold falls back to the default")
}

func TestResolve_ChainFlattened(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"A", "B", "C"} {
		writeFile(t, filepath.Join(root, dir, "chart.bme"), "same")
	}

	res := NewResolver(80, 0).Resolve(build(t, root))
	assert.Equal(t, []types.MergePair{
		{Source: filepath.Join(root, "B"), Target: filepath.Join(root, "A")},
		{Source: filepath.Join(root, "C"), Target: filepath.Join(root, "A")},
	}, res.Pairs)
	assert.Equal(t, filepath.Join(root, "B"), res.Edges[1].Target, "raw edge C -> B")
}

func TestResolve_NestedDuplicatesSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Outer", "a.bms"), "same")
	writeFile(t, filepath.Join(root, "Outer", "Inner", "a.bms"), "same")

	res := NewResolver(80, 0).Resolve(build(t, root))
	assert.Empty(t, res.Pairs)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, AnomalyNested, res.Anomalies[0].Kind)
}

func TestResolve_SameFolderSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "a.bms"), "same")
	writeFile(t, filepath.Join(root, "A", "b.bms"), "same")

	res := NewResolver(80, 0).Resolve(build(t, root))
	assert.Empty(t, res.Pairs)
	assert.Empty(t, res.Anomalies)
	assert.Zero(t, res.Compared)
}

func TestResolve_ListingsCached(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"P", "Q"} {
		writeFile(t, filepath.Join(root, dir, "n.bms"), "normal")
		writeFile(t, filepath.Join(root, dir, "h.bms"), "hyper")
	}

	calls := 0
	r := NewResolver(80, 8)
	r.list = func(dir string) ([]string, error) {
		calls++
		return listNames(dir)
	}

	res := r.Resolve(build(t, root))
	assert.Len(t, res.Pairs, 1)
	assert.Equal(t, 2, res.Compared)
	assert.Equal(t, 2, calls)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]struct{}
		want int
	}{
		{"identical", set("a.bms", "b.ogg"), set("a.bms", "b.ogg"), 100},
		{"disjoint", set("a.bms"), set("b.bms"), 0},
		{"both empty", set(), set(), 0},
		{"one differs of five", set("a", "b", "c", "d", "e"), set("a", "b", "c", "d", "f"), 80},
		{"subset", set("a", "b"), set("a", "b", "c", "d"), 66},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Similarity(tt.a, tt.b))
			assert.Equal(t, tt.want, Similarity(tt.b, tt.a))
		})
	}
}

func TestFlatten(t *testing.T) {
	t.Run("chain", func(t *testing.T) {
		pairs, anomalies := Flatten(map[string]string{"/l/C": "/l/B", "/l/B": "/l/A"})
		assert.Empty(t, anomalies)
		assert.Equal(t, []types.MergePair{
			{Source: "/l/B", Target: "/l/A"},
			{Source: "/l/C", Target: "/l/A"},
		}, pairs)
	})

	t.Run("cycle", func(t *testing.T) {
		pairs, anomalies := Flatten(map[string]string{"/l/A": "/l/B", "/l/B": "/l/C", "/l/C": "/l/B"})
		assert.Empty(t, pairs)
		require.Len(t, anomalies, 3)
		for _, a := range anomalies {
			assert.Equal(t, AnomalyCycle, a.Kind)
		}
	})

	t.Run("self", func(t *testing.T) {
		pairs, anomalies := Flatten(map[string]string{"/l/A": "/l/A"})
		assert.Empty(t, pairs)
		require.Len(t, anomalies, 1)
		assert.Equal(t, AnomalySelfMerge, anomalies[0].Kind)
	})

	t.Run("inner source first", func(t *testing.T) {
		pairs, _ := Flatten(map[string]string{"/l/A": "/l/T", "/l/A/sub": "/l/U"})
		assert.Equal(t, []types.MergePair{
			{Source: "/l/A/sub", Target: "/l/U"},
			{Source: "/l/A", Target: "/l/T"},
		}, pairs)
	})
}
