// Package cache keeps downloaded partition files on local disk, bounded by
// total size and evicted least recently used first.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arkilian/eventagg/internal/observability"
)

const (
	fileSuffix = ".sqlite"
	tempSuffix = ".download"
)

// Metrics holds cache statistics.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
}

type entry struct {
	path       string
	sizeBytes  int64
	lastAccess time.Time
	refs       int
}

// PartitionCache maps partition dates to local files. Files in use are
// pinned until released and are never evicted.
type PartitionCache struct {
	dir      string
	maxBytes int64

	mu      sync.Mutex
	entries map[string]*entry
	size    int64
	metrics Metrics
}

// New opens the cache in dir. maxBytes <= 0 leaves it unbounded. Partition
// files already in dir are indexed; leftover partial downloads are removed.
func New(dir string, maxBytes int64) (*PartitionCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	c := &PartitionCache{
		dir:      dir,
		maxBytes: maxBytes,
		entries:  make(map[string]*entry),
	}
	if err := c.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return c, nil
}

func (c *PartitionCache) scanExistingFiles() error {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		path := filepath.Join(c.dir, name)
		if strings.HasSuffix(name, tempSuffix) {
			os.Remove(path)
			continue
		}
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		c.entries[strings.TrimSuffix(name, fileSuffix)] = &entry{
			path:       path,
			sizeBytes:  info.Size(),
			lastAccess: info.ModTime(),
		}
		c.size += info.Size()
	}
	observability.CacheBytes.Set(float64(c.size))
	return nil
}

// Acquire returns the cached file for key and pins it. The caller must call
// Release when done reading.
func (c *PartitionCache) Acquire(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.Misses.Add(1)
		observability.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}
	c.metrics.Hits.Add(1)
	observability.CacheLookups.WithLabelValues("hit").Inc()
	e.lastAccess = time.Now()
	e.refs++
	return e.path, true
}

// Release unpins a file returned by Acquire or Admit.
func (c *PartitionCache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && e.refs > 0 {
		e.refs--
	}
	c.evictLocked()
}

// TempFile creates an empty file in the cache directory to download into.
func (c *PartitionCache) TempFile(key string) (string, error) {
	f, err := os.CreateTemp(c.dir, key+".*"+tempSuffix)
	if err != nil {
		return "", err
	}
	f.Close()
	return f.Name(), nil
}

// Admit moves a downloaded file into the cache under key and returns its
// pinned path. When another download of key won the race, tmpPath is
// discarded and the existing file is returned.
func (c *PartitionCache) Admit(key, tmpPath string) (string, error) {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		os.Remove(tmpPath)
		e.lastAccess = time.Now()
		e.refs++
		return e.path, nil
	}

	path := filepath.Join(c.dir, key+fileSuffix)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	c.entries[key] = &entry{path: path, sizeBytes: info.Size(), lastAccess: time.Now(), refs: 1}
	c.size += info.Size()
	c.evictLocked()
	return path, nil
}

// Remove drops key from the cache. A pinned file is removed from the index
// but stays readable by open handles.
func (c *PartitionCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.dropLocked(key, e)
	return true
}

// evictLocked removes unpinned files, least recently used first, until the
// cache fits maxBytes.
func (c *PartitionCache) evictLocked() {
	if c.maxBytes <= 0 || c.size <= c.maxBytes {
		observability.CacheBytes.Set(float64(c.size))
		return
	}

	type candidate struct {
		key string
		e   *entry
	}
	var candidates []candidate
	for k, e := range c.entries {
		if e.refs == 0 {
			candidates = append(candidates, candidate{k, e})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].e.lastAccess.Equal(candidates[j].e.lastAccess) {
			return candidates[i].e.lastAccess.Before(candidates[j].e.lastAccess)
		}
		return candidates[i].key < candidates[j].key
	})

	for _, cand := range candidates {
		if c.size <= c.maxBytes {
			break
		}
		c.dropLocked(cand.key, cand.e)
		c.metrics.Evictions.Add(1)
		observability.CacheEvictions.Inc()
	}
	observability.CacheBytes.Set(float64(c.size))
}

func (c *PartitionCache) dropLocked(key string, e *entry) {
	os.Remove(e.path)
	delete(c.entries, key)
	c.size -= e.sizeBytes
}

// Stats returns the hit, miss and eviction counts.
func (c *PartitionCache) Stats() (hits, misses, evictions int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(), c.metrics.Evictions.Load()
}

// Size returns the bytes held in the cache.
func (c *PartitionCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached partitions.
func (c *PartitionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
