// Package types provides core data types for the chartsweep library
// consolidator. It includes the chart file and hash group model shared by the
// index, merge and rename stages, along with utility functions for parsing and
// formatting sizes.
package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// ChartExtensions lists the file extensions recognized as chart files.
// Matching is case-insensitive.
var ChartExtensions = []string{".bms", ".bme", ".bml", ".pms"}

// IsChartFile reports whether name carries one of the chart extensions.
func IsChartFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ChartExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ChartFile is a snapshot of a single chart file taken during indexing.
type ChartFile struct {
	// Path is the absolute path to the file.
	Path string `json:"path"`

	// Ext is the lowercase extension including the leading dot.
	Ext string `json:"ext"`

	// Hash is the lowercase hex SHA-256 digest of the file contents.
	Hash string `json:"hash"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`
}

// Folder returns the chart folder (parent directory) of the file.
func (c ChartFile) Folder() string {
	return filepath.Dir(c.Path)
}

// HashGroup maps a content hash to the paths of every file with that content.
// Paths within a group are kept in lexicographic order.
type HashGroup map[string][]string

// Hashes returns the group keys in sorted order.
func (g HashGroup) Hashes() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Duplicated returns the number of groups with more than one member.
func (g HashGroup) Duplicated() int {
	n := 0
	for _, paths := range g {
		if len(paths) > 1 {
			n++
		}
	}
	return n
}

// MergePair is a resolved merge: Source is absorbed into Target.
type MergePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// NameCandidate is an artist/title pair read from a chart header.
type NameCandidate struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// ScanError represents an error encountered during indexing.
// It pairs a file path with the error message for debugging and reporting.
type ScanError struct {
	// Path is the file or directory path where the error occurred.
	Path string `json:"path"`

	// Error is the error message describing what went wrong.
	Error string `json:"error"`
}

// Failure is a per-folder error collected by a stage that keeps going.
type Failure struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// NewFailure builds a Failure from err, classifying it with KindOf.
func NewFailure(path string, err error) Failure {
	return Failure{Path: path, Kind: KindOf(err).String(), Error: err.Error()}
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string such as "10MB" or "512K" and
// returns the size in bytes. Units are binary (1K = 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
