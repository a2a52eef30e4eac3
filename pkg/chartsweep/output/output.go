// Package output renders command results for the terminal or for scripts.
//
// Formatters are looked up by name from a registry:
//
//	f, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, result); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/archive"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/manifest"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/pipeline"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/scoredb"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/table"
)

// Practice is a task or oldest folder appended to a default table file.
type Practice struct {
	// Table is the default table file the folder was appended to.
	Table string `json:"table"`

	Folder     scoredb.Folder `json:"folder"`
	Notes      int            `json:"notes,omitempty"`
	Candidates int            `json:"candidates,omitempty"`
	Skipped    []string       `json:"skipped,omitempty"`
}

// Result is the output of one command. Exactly one of the report fields is
// set.
type Result struct {
	Command string `json:"command"`
	DryRun  bool   `json:"dry_run"`

	Organize *pipeline.Report  `json:"organize,omitempty"`
	Coverage *table.Result     `json:"coverage,omitempty"`
	Install  *archive.Report   `json:"install,omitempty"`
	Practice *Practice         `json:"practice,omitempty"`
	History  []manifest.Entry  `json:"history,omitempty"`
	Entry    *manifest.Entry   `json:"entry,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Formatter writes a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps formatter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
