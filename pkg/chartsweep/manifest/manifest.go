package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for an unknown entry ID.
var ErrNotFound = errors.New("journal entry not found")

// Manifest stores journal entries as JSON files in a directory.
type Manifest struct {
	dir string
	mu  sync.Mutex
}

// New creates a Manifest rooted at dir. The directory is created lazily.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{dir: dir}, nil
}

// Dir returns the journal directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// Session collects the actions of one command until Commit.
type Session struct {
	m     *Manifest
	mu    sync.Mutex
	entry Entry
}

// Begin starts a session for command operating on root.
func (m *Manifest) Begin(command, root string, dryRun bool) *Session {
	now := time.Now().UTC()
	return &Session{
		m: m,
		entry: Entry{
			ID:        generateID(command, now),
			Timestamp: now,
			Command:   command,
			Root:      root,
			DryRun:    dryRun,
		},
	}
}

// Record appends an action. Safe for concurrent use.
func (s *Session) Record(a Action) {
	if a.Time.IsZero() {
		a.Time = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry.Actions = append(s.entry.Actions, a)
}

// Commit writes the session to disk. Sessions without actions are not written.
func (s *Session) Commit() (*Entry, error) {
	s.mu.Lock()
	entry := s.entry
	entry.Actions = append([]Action(nil), s.entry.Actions...)
	s.mu.Unlock()

	entry.Summary = Summary{Actions: len(entry.Actions)}
	for _, a := range entry.Actions {
		if a.Error != "" {
			entry.Summary.Failed++
		}
	}
	if len(entry.Actions) == 0 {
		return &entry, nil
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := os.MkdirAll(s.m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	if err := s.m.writeEntry(&entry); err != nil {
		return nil, fmt.Errorf("failed to write journal entry: %w", err)
	}
	return &entry, nil
}

func (m *Manifest) writeEntry(entry *Entry) error {
	path := filepath.Join(m.dir, entry.ID+".json")

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries newest first. A limit of 0 or less returns all.
func (m *Manifest) List(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID. A unique ID prefix also matches.
func (m *Manifest) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	var match *Entry
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
		if strings.HasPrefix(entries[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous entry ID prefix %q", id)
			}
			match = &entries[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

func (m *Manifest) readAll() ([]Entry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, f.Name()))
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Cleanup removes entries older than retentionDays and returns how many were
// removed.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read journal directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, f.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// generateID creates an ID like "organize-2026-10-17T10-30-00-1b4e28ba".
func generateID(command string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-%s", command, ts.Format("2006-01-02T15-04-05"), uuid.NewString()[:8])
}
