// Package index builds a content-addressed snapshot of the chart files under a
// library root. Files are discovered with a parallel directory walk, hashed
// with SHA-256 on a bounded worker pool, and grouped by digest.
//
// An Index is a snapshot: it is never updated after Build returns and must be
// rebuilt after any stage that moves files.
package index

import (
	"time"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/hashcache"
)

// Default pool sizes used when Options leaves them unset.
const (
	DefaultWalkWorkers = 4
	DefaultHashWorkers = 8
)

// HashCache supplies previously computed digests. *hashcache.Store
// implements it.
type HashCache interface {
	Lookup(path string, size int64, mtime time.Time) (string, error)
	PutBatch(entries map[string]hashcache.Entry) error
}

// Progress is a snapshot of indexing progress.
type Progress struct {
	FilesFound   int64
	FilesHashed  int64
	Dropped      int64
	CacheHits    int64
	CurrentPath  string
	WalkComplete bool
}

// Options configures Build.
type Options struct {
	// Exclude holds glob patterns matched against entry base names, or path
	// prefixes. Hidden entries and $RECYCLE.BIN are always excluded.
	Exclude []string

	// WalkWorkers is the number of directory walkers.
	WalkWorkers int

	// HashWorkers is the number of concurrent hashers.
	HashWorkers int

	// FollowLink reports whether the symlink at path is indexed as the
	// regular file it points at. Nil indexes no symlinks.
	FollowLink func(path string) bool

	// Cache is an optional digest cache. Nil disables caching.
	Cache HashCache

	// OnProgress is called periodically from multiple goroutines.
	OnProgress func(Progress)
}

func (o *Options) applyDefaults() {
	if o.WalkWorkers < 1 {
		o.WalkWorkers = DefaultWalkWorkers
	}
	if o.HashWorkers < 1 {
		o.HashWorkers = DefaultHashWorkers
	}
}
