package table

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// SuggestionThreshold is the minimum Jaro-Winkler similarity for a local
// folder to be suggested for a missing chart.
const SuggestionThreshold = 0.8

// MaxSuggestions caps the suggestions per missing chart.
const MaxSuggestions = 3

// Library is the view of a chart index Coverage needs.
type Library interface {
	Has(hash string) bool
	Files() []types.ChartFile
}

// LevelRange limits a coverage check to charts whose numeric level lies in
// [Min, Max]. A nil bound is open. Charts with non-numeric levels are always
// checked.
type LevelRange struct {
	Min *float64
	Max *float64
}

// Contains reports whether a chart at level l is checked.
func (r LevelRange) Contains(l Level) bool {
	n, ok := l.Number()
	if !ok {
		return true
	}
	if r.Min != nil && n < *r.Min {
		return false
	}
	if r.Max != nil && n > *r.Max {
		return false
	}
	return true
}

// Missing is a table chart absent from the library.
type Missing struct {
	Level       Level    `json:"level"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	DiffURL     string   `json:"diff_url,omitempty"`
	SHA256      string   `json:"sha256"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Result is the outcome of Coverage.
type Result struct {
	Table   string    `json:"table,omitempty"`
	Found   int       `json:"found"`
	Total   int       `json:"total"`
	Missing []Missing `json:"missing"`
}

// Percent returns the covered share of the checked charts.
func (r Result) Percent() float64 {
	if r.Total == 0 {
		return 100
	}
	return float64(r.Found) * 100 / float64(r.Total)
}

// Coverage checks every chart of t within levels against the library by
// SHA-256. Missing charts keep table order.
func Coverage(lib Library, t *Table, levels LevelRange) Result {
	res := Result{Table: t.Name}
	folders := folderNames(lib.Files())

	for _, c := range t.Charts {
		if !levels.Contains(c.Level) {
			continue
		}
		res.Total++
		if c.SHA256 != "" && lib.Has(c.SHA256) {
			res.Found++
			continue
		}
		res.Missing = append(res.Missing, Missing{
			Level:       c.Level,
			Title:       c.Title,
			URL:         c.URL,
			DiffURL:     c.URLDiff,
			SHA256:      c.SHA256,
			Suggestions: Suggest(c.Title, folders),
		})
	}
	return res
}

// Suggest ranks folder names by similarity to title and returns up to
// MaxSuggestions above SuggestionThreshold. A "[Artist] " prefix on a folder
// name is ignored when comparing.
func Suggest(title string, folders []string) []string {
	want := strings.ToLower(strings.TrimSpace(title))
	if want == "" {
		return nil
	}

	type scored struct {
		name  string
		score float32
	}
	var hits []scored
	for _, name := range folders {
		sim, err := edlib.StringsSimilarity(want, strings.ToLower(stripArtist(name)), edlib.JaroWinkler)
		if err != nil || sim < SuggestionThreshold {
			continue
		}
		hits = append(hits, scored{name, sim})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].name < hits[j].name
	})

	var out []string
	for i := 0; i < len(hits) && i < MaxSuggestions; i++ {
		out = append(out, hits[i].name)
	}
	return out
}

func stripArtist(name string) string {
	if strings.HasPrefix(name, "[") {
		if i := strings.Index(name, "] "); i > 0 {
			return name[i+2:]
		}
	}
	return name
}

func folderNames(files []types.ChartFile) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		name := filepath.Base(f.Folder())
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
