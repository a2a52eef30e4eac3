package logging

import "sync"

// DefaultBufferSize is the number of entries kept by the ring buffer.
const DefaultBufferSize = 100

// LogBuffer holds the most recent log entries.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBuffer creates a buffer holding up to size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

// Add stores entry, overwriting the oldest one when full.
func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of stored entries.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Last returns up to n of the newest entries, oldest first.
func (b *LogBuffer) Last(n int) []LogEntry {
	return b.filter(n, func(LogEntry) bool { return true })
}

// LastAtLeast returns up to n of the newest entries at or above level.
func (b *LogBuffer) LastAtLeast(level Level, n int) []LogEntry {
	return b.filter(n, func(e LogEntry) bool { return e.Level >= level })
}

func (b *LogBuffer) filter(n int, keep func(LogEntry) bool) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.next
	if b.full {
		count = len(b.entries)
	}

	var out []LogEntry
	for i := 1; i <= count && len(out) < n; i++ {
		idx := (b.next - i + len(b.entries)) % len(b.entries)
		if keep(b.entries[idx]) {
			out = append(out, b.entries[idx])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
