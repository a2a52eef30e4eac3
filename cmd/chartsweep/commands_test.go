package main

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
)

func stageCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("dest", "", "")
	cmd.Flags().Bool("shard", false, "")
	cmd.Flags().Int("threshold", config.DefaultThreshold, "")
	return cmd
}

func TestResolveStageSettings(t *testing.T) {
	lib := t.TempDir()
	dest := t.TempDir()
	cfg := &config.Config{Dir: lib, Threshold: 70, Shard: true}

	t.Run("config values when flags unset", func(t *testing.T) {
		s, err := resolveStageSettings(stageCommand(), nil, cfg)
		require.NoError(t, err)
		assert.Equal(t, lib, s.root)
		assert.Equal(t, "", s.dest)
		assert.Equal(t, 70, s.threshold)
		assert.True(t, s.shard)
	})

	t.Run("flags override config", func(t *testing.T) {
		cmd := stageCommand()
		require.NoError(t, cmd.Flags().Set("threshold", "95"))
		require.NoError(t, cmd.Flags().Set("shard", "false"))
		require.NoError(t, cmd.Flags().Set("dest", dest))

		s, err := resolveStageSettings(cmd, nil, cfg)
		require.NoError(t, err)
		assert.Equal(t, 95, s.threshold)
		assert.False(t, s.shard)
		assert.Equal(t, dest, s.dest)
	})

	t.Run("argument overrides dir", func(t *testing.T) {
		other := t.TempDir()
		s, err := resolveStageSettings(stageCommand(), []string{other}, cfg)
		require.NoError(t, err)
		assert.Equal(t, other, s.root)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cmd := stageCommand()
		require.NoError(t, cmd.Flags().Set("threshold", "150"))
		_, err := resolveStageSettings(cmd, nil, cfg)
		assert.Error(t, err)
	})

	t.Run("missing dest", func(t *testing.T) {
		cmd := stageCommand()
		require.NoError(t, cmd.Flags().Set("dest", filepath.Join(dest, "nope")))
		_, err := resolveStageSettings(cmd, nil, cfg)
		assert.Error(t, err)
	})

	t.Run("root is a file", func(t *testing.T) {
		file := filepath.Join(lib, "file.txt")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		_, err := resolveStageSettings(stageCommand(), []string{file}, cfg)
		assert.Error(t, err)
	})
}

func TestLevelRange(t *testing.T) {
	cmd := &cobra.Command{Use: "check"}
	cmd.Flags().Float64("min-level", 0, "")
	cmd.Flags().Float64("max-level", 0, "")

	r := levelRange(cmd)
	assert.Nil(t, r.Min)
	assert.Nil(t, r.Max)

	require.NoError(t, cmd.Flags().Set("min-level", "0"))
	require.NoError(t, cmd.Flags().Set("max-level", "12.5"))
	r = levelRange(cmd)
	require.NotNil(t, r.Min)
	require.NotNil(t, r.Max)
	assert.Equal(t, 0.0, *r.Min)
	assert.Equal(t, 12.5, *r.Max)
}

func TestFlagOr(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("lamp", "HARD", "")

	assert.Equal(t, "EASY", flagOr(cmd, "lamp", "EASY", cmd.Flags().GetString))
	assert.Equal(t, "EASY", flagOr(cmd, "missing", "EASY", cmd.Flags().GetString))

	require.NoError(t, cmd.Flags().Set("lamp", "EXHARD"))
	assert.Equal(t, "EXHARD", flagOr(cmd, "lamp", "EASY", cmd.Flags().GetString))
}

func TestJournal(t *testing.T) {
	t.Run("disabled records nothing", func(t *testing.T) {
		j := openJournal(&config.Config{}, "organize", "/lib", false)
		assert.Nil(t, j.recorder())
		j.commit()
	})

	t.Run("enabled writes an entry", func(t *testing.T) {
		dir := t.TempDir()
		cfg := &config.Config{Journal: config.JournalConfig{Enabled: true, Path: dir}}

		j := openJournal(cfg, "install", "/lib", true)
		require.NotNil(t, j.recorder())
		j.recorder().Record(manifest.Action{Op: manifest.OpExtract, Source: "/in/a.zip", Target: "/in"})
		j.commit()

		m, err := manifest.New(dir)
		require.NoError(t, err)
		entries, err := m.List(0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "install", entries[0].Command)
		assert.True(t, entries[0].DryRun)
		assert.Equal(t, 1, entries[0].Summary.Actions)
	})
}

func TestEffectiveSettingsDropsRuntimeFlags(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("dry_run", true)
	v.Set("verbose", true)

	settings := effectiveSettings(v)
	assert.NotContains(t, settings, "dry_run")
	assert.NotContains(t, settings, "verbose")
	assert.Equal(t, config.DefaultThreshold, settings["threshold"])
	assert.Contains(t, settings, "journal")
}

// snapshot maps every path under root to its content ("" for directories).
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if d.IsDir() {
			out[rel] = ""
			return nil
		}
		data, err := os.ReadFile(p)
		out[rel] = string(data)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestOrganizeDryRunLeavesLibraryUntouched(t *testing.T) {
	isolateXDG(t)
	t.Setenv("CHARTSWEEP_JOURNAL_ENABLED", "false")

	lib := t.TempDir()
	chart := "#PLAYER 1\n#TITLE Song\n#ARTIST Foo\n#BPM 150\n"
	for _, p := range []string{"pack/song/a.bms", "copy/a.bms"} {
		full := filepath.Join(lib, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(chart), 0o644))
	}
	before := snapshot(t, lib)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"organize", "--dry-run", "--quiet", "--format", "json", lib})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = logging.Close()
	})

	require.NoError(t, rootCmd.Execute())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "organize", doc["command"])
	assert.Equal(t, true, doc["dry_run"])
	require.Contains(t, doc, "organize")

	assert.Equal(t, before, snapshot(t, lib), "dry run must not touch the library")
}
