package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/config"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/hashcache"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the hash cache",
	Long: `Commands for managing the content-hash cache.

With --cache (or cache.enabled: true) chartsweep remembers the SHA-256 digest of
every chart file it hashes, keyed by path, size and modification time, so an
unchanged library is indexed without re-reading its files. Data is stored in
the XDG cache directory (typically ~/.cache/chartsweep/hashes).`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(func(path string, s *hashcache.Store) error {
			st, err := s.Stats()
			if err != nil {
				return fmt.Errorf("failed to read cache: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cache location: %s\n", path)
			fmt.Fprintf(out, "Entries:        %s\n", humanize.Comma(int64(st.Entries)))
			fmt.Fprintf(out, "Size:           %s\n", humanize.IBytes(uint64(st.LSMBytes+st.LogBytes)))
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached digests",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withCache(func(_ string, s *hashcache.Store) error {
			if err := s.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			printInfo("Cache cleared.")
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop digests of files that no longer exist",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withCache(func(_ string, s *hashcache.Store) error {
			n, err := s.Prune()
			if err != nil {
				return fmt.Errorf("failed to prune cache: %w", err)
			}
			printInfo("Pruned %d stale entries.", n)
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withCache opens the configured cache for the duration of fn. A cache that
// was never created is reported as empty rather than created.
func withCache(fn func(path string, s *hashcache.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Cache.Path
	if path == "" {
		path = config.DefaultCacheDir()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		printInfo("Cache is empty (%s does not exist).", path)
		return nil
	}

	s, err := hashcache.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(path, s)
}
