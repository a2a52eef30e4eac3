package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// Tests below mutate global state and must not run in parallel.

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartsweep.log")
	if err := Init(Config{Level: "debug", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Get("index").Info("walk finished", "files", 3)

	if err := Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "walk finished") || !strings.Contains(string(data), "index") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestInitRejectsBadComponentLevel(t *testing.T) {
	err := Init(Config{
		Level:      "info",
		Path:       filepath.Join(t.TempDir(), "x.log"),
		Components: map[string]string{"merge": "chatty"},
	})
	if err == nil {
		t.Fatal("Init() expected error for invalid component level")
	}
}

func TestConsoleJSON(t *testing.T) {
	var out bytes.Buffer
	globalState.mu.Lock()
	globalState.consoleOut = &out
	globalState.mu.Unlock()
	t.Cleanup(func() {
		globalState.mu.Lock()
		globalState.consoleOut = os.Stderr
		globalState.mu.Unlock()
		_ = Close()
	})

	err := Init(Config{
		Level:        "info",
		Path:         filepath.Join(t.TempDir(), "x.log"),
		ConsoleLevel: "info",
		ConsoleJSON:  true,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Get("merge").Warn("self merge skipped", "folder", "/lib/a")

	line := strings.TrimSpace(out.String())
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("console line is not JSON: %q: %v", line, err)
	}
	if obj["msg"] != "self merge skipped" {
		t.Errorf("msg = %v", obj["msg"])
	}
	if obj["folder"] != "/lib/a" {
		t.Errorf("folder = %v", obj["folder"])
	}
}

func TestBufferedMode(t *testing.T) {
	if err := Init(Config{Level: "debug", Path: filepath.Join(t.TempDir(), "x.log"), ConsoleLevel: "warn", Buffered: true}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = Close() })

	Get("rename").Info("proposed")
	Get("rename").Warn("conflict")

	buf := Buffer()
	if buf == nil {
		t.Fatal("Buffer() = nil in buffered mode")
	}
	warns := buf.LastAtLeast(LevelWarn, 5)
	if len(warns) != 1 || warns[0].Message != "conflict" {
		t.Errorf("LastAtLeast(warn) = %+v", warns)
	}
}

func TestLogBufferWraps(t *testing.T) {
	b := NewLogBuffer(3)
	for _, m := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: m})
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	got := b.Last(10)
	var msgs []string
	for _, e := range got {
		msgs = append(msgs, e.Message)
	}
	if strings.Join(msgs, "") != "bcd" {
		t.Errorf("Last() = %v, want [b c d]", msgs)
	}
}

func TestRotatingWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.log")
	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 10, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if _, err := w.Write([]byte("0123456789")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Errorf("expected rotated files, got %d entries", len(entries))
	}
}
