// Package config provides configuration management for chartsweep.
package config

// Default configuration values for chartsweep.
const (
	// DefaultDir is the library root used when none is specified.
	DefaultDir = "."

	// DefaultThreshold is the minimum folder similarity (percent) for a merge.
	DefaultThreshold = 80

	// DefaultWorkers of zero lets the tuner size the worker pools.
	DefaultWorkers = 0

	// DefaultFormat is the report format.
	DefaultFormat = "pretty"

	// DefaultRetentionDays is how long journal entries are kept.
	DefaultRetentionDays = 30

	// DefaultTableTimeout is the HTTP timeout for difficulty table fetches, in seconds.
	DefaultTableTimeout = 30

	// DefaultLamp is the clear lamp used by task and oldest.
	DefaultLamp = "HARD"
)

// DefaultExclusions contains glob patterns skipped while indexing, matched
// against entry base names. Dot-prefixed entries and $RECYCLE.BIN are always
// skipped regardless of this list.
var DefaultExclusions = []string{
	"System Volume Information",
}
