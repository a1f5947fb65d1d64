package aof

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWriterWritesAndFlushesRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.aof")

	w := NewWriter(path, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.LogSet("foo", "bar")
	w.LogDel("baz")
	w.LogExpire("foo", 60)

	w.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), lines)
	}
	if lines[0] != "SET foo bar" {
		t.Errorf("line 0 = %q, want %q", lines[0], "SET foo bar")
	}
	if lines[1] != "DEL baz" {
		t.Errorf("line 1 = %q, want %q", lines[1], "DEL baz")
	}
	if lines[2] != "EXPIRE foo 60" {
		t.Errorf("line 2 = %q, want %q", lines[2], "EXPIRE foo 60")
	}
	if w.WrittenCount() != 3 {
		t.Errorf("WrittenCount() = %d, want 3", w.WrittenCount())
	}
}

func TestWriterQuotesValuesWithSpaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.aof")

	w := NewWriter(path, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.LogSet("foo", "has a space")
	w.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := `SET foo "has a space"` + "\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", string(data), want)
	}
}

func TestSetEnabledSuppressesLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.aof")

	w := NewWriter(path, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.SetEnabled(false)
	w.LogSet("foo", "bar")
	w.SetEnabled(true)
	w.LogSet("baz", "qux")
	w.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "SET baz qux\n" {
		t.Fatalf("got %q, want only the second record", string(data))
	}
}

func TestLoggingAfterStopIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.aof")

	w := NewWriter(path, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.LogSet("foo", "bar") // must not panic or reopen the file

	if w.PendingCount() != 0 {
		t.Fatalf("PendingCount() after stop = %d, want 0", w.PendingCount())
	}
}

func TestWriterFlushesWithoutExplicitStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.aof")

	w := NewWriter(path, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	w.LogSet("foo", "bar")
	time.Sleep(200 * time.Millisecond)

	if w.WrittenCount() != 1 {
		t.Fatalf("WrittenCount() = %d, want 1 after flush interval elapses", w.WrittenCount())
	}
}
