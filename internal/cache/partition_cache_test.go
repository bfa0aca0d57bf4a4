package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func download(t *testing.T, c *PartitionCache, key string, size int) string {
	t.Helper()
	tmp, err := c.TempFile(key)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if err := os.WriteFile(tmp, []byte(strings.Repeat("x", size)), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	path, err := c.Admit(key, tmp)
	if err != nil {
		t.Fatalf("failed to admit %s: %v", key, err)
	}
	return path
}

func TestPartitionCache_AcquireRelease(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	if _, ok := c.Acquire("20240101"); ok {
		t.Fatal("expected miss on empty cache")
	}

	path := download(t, c, "20240101", 10)
	c.Release("20240101")
	if filepath.Base(path) != "20240101.sqlite" {
		t.Errorf("unexpected cache file name %s", path)
	}

	got, ok := c.Acquire("20240101")
	if !ok || got != path {
		t.Fatalf("expected hit at %s, got %q (ok=%v)", path, got, ok)
	}
	c.Release("20240101")

	hits, misses, _ := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}
	if c.Size() != 10 || c.Len() != 1 {
		t.Errorf("expected 1 entry of 10 bytes, got %d entries of %d bytes", c.Len(), c.Size())
	}
}

func TestPartitionCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(t.TempDir(), 25)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	first := download(t, c, "20240101", 10)
	c.Release("20240101")
	download(t, c, "20240102", 10)
	c.Release("20240102")

	// touch 20240101 so 20240102 becomes the oldest
	if _, ok := c.Acquire("20240101"); !ok {
		t.Fatal("expected hit")
	}
	c.Release("20240101")

	download(t, c, "20240103", 10)
	c.Release("20240103")

	if _, ok := c.Acquire("20240102"); ok {
		t.Error("expected 20240102 to be evicted")
	}
	if _, err := os.Stat(first); err != nil {
		t.Errorf("expected 20240101 to stay cached: %v", err)
	}
	if _, _, evictions := c.Stats(); evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", evictions)
	}
	if c.Size() != 20 {
		t.Errorf("expected 20 bytes, got %d", c.Size())
	}
}

func TestPartitionCache_PinnedFilesSurviveEviction(t *testing.T) {
	c, err := New(t.TempDir(), 15)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	pinned := download(t, c, "20240101", 10)
	download(t, c, "20240102", 10)

	// both are pinned, so the cache is allowed to overflow
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}

	c.Release("20240102")
	if _, err := os.Stat(pinned); err != nil {
		t.Errorf("pinned file was evicted: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected the released file to be evicted, got %d entries", c.Len())
	}
}

func TestPartitionCache_AdmitRace(t *testing.T) {
	c, err := New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	a := download(t, c, "20240101", 10)
	b := download(t, c, "20240101", 12)
	if a != b {
		t.Errorf("expected the first download to win, got %s and %s", a, b)
	}
	if c.Size() != 10 {
		t.Errorf("expected 10 bytes, got %d", c.Size())
	}
}

func TestPartitionCache_RebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20240101.sqlite"), []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dir, "20240102.123.download")
	if err := os.WriteFile(stale, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := New(dir, 0)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	if _, ok := c.Acquire("20240101"); !ok {
		t.Error("expected existing file to be indexed")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expected partial download to be removed")
	}

	if !c.Remove("20240101") {
		t.Error("expected Remove to report an entry")
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d bytes", c.Size())
	}
}
