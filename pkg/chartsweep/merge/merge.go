// Package merge detects duplicate chart folders and resolves them into
// direct source to target merge pairs.
//
// Two folders are linked when they hold a byte-identical chart file and their
// file-name sets are similar enough. Links may chain; Resolve flattens every
// chain to its terminal folder so the resulting pairs can be applied one by
// one without touching a folder that a later pair still reads.
package merge

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/index"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/transactor"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// DefaultThreshold is the minimum similarity, in percent, for a merge.
const DefaultThreshold = 80

// defaultListingCache is the listing cache capacity when none is given.
const defaultListingCache = 1024

// AnomalyKind classifies a pair the resolver refused to emit.
type AnomalyKind string

const (
	// AnomalySelfMerge is a source whose chain resolves back to itself.
	AnomalySelfMerge AnomalyKind = "self_merge"
	// AnomalyCycle is a chain that revisits a folder before terminating.
	AnomalyCycle AnomalyKind = "cycle"
	// AnomalyNested is a duplicate pair where one folder contains the other.
	AnomalyNested AnomalyKind = "nested"
)

// Anomaly records a skipped pair.
type Anomaly struct {
	Kind   AnomalyKind `json:"kind"`
	Source string      `json:"source"`
	Target string      `json:"target"`
}

// Edge is a direct duplicate link found between two folders.
type Edge struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Confidence int    `json:"confidence"`
}

// Result is the outcome of Resolve.
type Result struct {
	// Edges are the raw links, one per source, sorted by source.
	Edges []Edge `json:"edges"`

	// Pairs are the flattened merges in application order.
	Pairs []types.MergePair `json:"pairs"`

	// Anomalies are links that were dropped.
	Anomalies []Anomaly `json:"anomalies,omitempty"`

	// Compared is the number of folder comparisons made.
	Compared int `json:"compared"`
}

// Resolver finds duplicate folders in an index.
type Resolver struct {
	// Threshold is the minimum similarity percentage. Zero merges every
	// linked pair; a negative value uses DefaultThreshold.
	Threshold int

	// CacheSize bounds the folder listing cache. Zero uses a default.
	CacheSize int

	list func(dir string) ([]string, error)
	log  *logging.Logger
}

// NewResolver returns a Resolver with the given threshold and listing cache size.
func NewResolver(threshold, cacheSize int) *Resolver {
	return &Resolver{
		Threshold: threshold,
		CacheSize: cacheSize,
		list:      listNames,
		log:       logging.Get("merge"),
	}
}

// Resolve computes merge pairs from idx. It reads folder listings but never
// modifies the filesystem.
func (r *Resolver) Resolve(idx *index.Index) Result {
	threshold := r.Threshold
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	size := r.CacheSize
	if size <= 0 {
		size = defaultListingCache
	}
	list := r.list
	if list == nil {
		list = listNames
	}
	log := r.log
	if log == nil {
		log = logging.Get("merge")
	}

	listings, _ := lru.New[string, map[string]struct{}](size)
	names := func(dir string) map[string]struct{} {
		if set, ok := listings.Get(dir); ok {
			return set
		}
		entries, err := list(dir)
		if err != nil {
			log.Warn("cannot list folder", "dir", dir, "err", err)
		}
		set := make(map[string]struct{}, len(entries))
		for _, n := range entries {
			set[n] = struct{}{}
		}
		listings.Add(dir, set)
		return set
	}

	var res Result
	edges := make(map[string]string)
	confidence := make(map[string]int)
	groups := idx.Groups()

	for _, hash := range groups.Hashes() {
		members := groups[hash]
		for i := 0; i+1 < len(members); i++ {
			earlier := filepath.Dir(members[i])
			later := filepath.Dir(members[i+1])

			if earlier == later {
				continue
			}
			if transactor.IsWithin(earlier, later) || transactor.IsWithin(later, earlier) {
				res.Anomalies = append(res.Anomalies, Anomaly{Kind: AnomalyNested, Source: later, Target: earlier})
				log.Debug("nested duplicate folders skipped", "outer", earlier, "inner", later)
				continue
			}

			res.Compared++
			score := Similarity(names(earlier), names(later))
			if score < threshold {
				log.Debug("folders below threshold", "a", earlier, "b", later, "confidence", score)
				continue
			}
			edges[later] = earlier
			confidence[later] = score
		}
	}

	for src, dst := range edges {
		res.Edges = append(res.Edges, Edge{Source: src, Target: dst, Confidence: confidence[src]})
	}
	sort.Slice(res.Edges, func(i, j int) bool { return res.Edges[i].Source < res.Edges[j].Source })

	pairs, anomalies := Flatten(edges)
	for _, a := range anomalies {
		log.Warn("merge chain anomaly", "kind", a.Kind, "source", a.Source, "target", a.Target)
	}
	res.Pairs = pairs
	res.Anomalies = append(res.Anomalies, anomalies...)

	log.Info("duplicates resolved", "compared", res.Compared, "edges", len(res.Edges), "pairs", len(res.Pairs))
	return res
}

// Similarity scores two file-name sets from 0 to 100:
// 100 * (|A|+|B| - |A symdiff B|) / (|A|+|B|). Identical sets score 100,
// disjoint sets 0. Two empty sets score 0.
func Similarity(a, b map[string]struct{}) int {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	symdiff := 0
	for n := range a {
		if _, ok := b[n]; !ok {
			symdiff++
		}
	}
	for n := range b {
		if _, ok := a[n]; !ok {
			symdiff++
		}
	}
	return 100 * (total - symdiff) / total
}

// Flatten resolves every edge to the terminal folder of its chain. Chains are
// walked with a visited set: a chain that revisits a folder is a cycle and
// yields no pair, and an edge from a folder to itself is a self-merge no-op.
// Pairs are sorted by source, except that a pair whose folders lie inside
// another pair's source is applied first.
func Flatten(edges map[string]string) ([]types.MergePair, []Anomaly) {
	sources := make([]string, 0, len(edges))
	for s := range edges {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var pairs []types.MergePair
	var anomalies []Anomaly

	for _, src := range sources {
		cur := edges[src]
		if cur == src {
			anomalies = append(anomalies, Anomaly{Kind: AnomalySelfMerge, Source: src, Target: cur})
			continue
		}

		seen := map[string]bool{src: true}
		cycle := false
		for {
			if seen[cur] {
				cycle = true
				break
			}
			seen[cur] = true
			next, ok := edges[cur]
			if !ok {
				break
			}
			cur = next
		}

		if cycle {
			anomalies = append(anomalies, Anomaly{Kind: AnomalyCycle, Source: src, Target: cur})
			continue
		}
		pairs = append(pairs, types.MergePair{Source: src, Target: cur})
	}

	return orderPairs(pairs), anomalies
}

// orderPairs moves pairs whose source or target sits inside another pair's
// source ahead of the rest, keeping relative order otherwise.
func orderPairs(pairs []types.MergePair) []types.MergePair {
	inner := func(p types.MergePair) bool {
		for _, q := range pairs {
			if q.Source == p.Source {
				continue
			}
			if transactor.IsWithin(p.Source, q.Source) || transactor.IsWithin(p.Target, q.Source) {
				return true
			}
		}
		return false
	}

	var first, rest []types.MergePair
	for _, p := range pairs {
		if inner(p) {
			first = append(first, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(first, rest...)
}

// listNames returns the names of the regular files directly inside dir.
// Subdirectories do not count. Symlinks count when they resolve to a file.
func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.Type().IsRegular():
		case e.Type()&fs.ModeSymlink != 0:
			info, statErr := os.Stat(filepath.Join(dir, e.Name()))
			if statErr != nil || !info.Mode().IsRegular() {
				continue
			}
		default:
			continue
		}
		names = append(names, e.Name())
	}
	return names, err
}
