package provider

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type cachedText struct {
	text    string
	modTime time.Time
	size    int64
}

// fileCache keeps decoded document text keyed by absolute path. Entries are
// revalidated against the file's size and mtime unless they lie under the
// root a running Watcher covers, in which case they are trusted until the
// watcher invalidates them.
type fileCache struct {
	mu       sync.Mutex
	entries  map[string]cachedText
	order    []string
	bytes    int64
	maxBytes int64
	// watched is the directory whose changes are being followed; empty when
	// no watcher runs.
	watched string
}

func newFileCache(maxBytes int64) *fileCache {
	return &fileCache{
		entries:  make(map[string]cachedText),
		maxBytes: maxBytes,
	}
}

func (c *fileCache) get(path string) (string, bool) {
	if c.maxBytes <= 0 {
		return "", false
	}
	c.mu.Lock()
	e, ok := c.entries[path]
	watched := c.watched
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	if within(watched, path) {
		return e.text, true
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != e.size || !info.ModTime().Equal(e.modTime) {
		c.invalidate(path)
		return "", false
	}
	return e.text, true
}

func (c *fileCache) put(path string, text string, info os.FileInfo) {
	size := int64(len(text))
	if c.maxBytes <= 0 || size > c.maxBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[path]; ok {
		c.bytes -= int64(len(old.text))
	} else {
		c.order = append(c.order, path)
	}
	c.entries[path] = cachedText{text: text, modTime: info.ModTime(), size: info.Size()}
	c.bytes += size
	for c.bytes > c.maxBytes && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[oldest]; ok {
			c.bytes -= int64(len(e.text))
			delete(c.entries, oldest)
		}
	}
}

// invalidate drops path and reports whether it was cached.
func (c *fileCache) invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return false
	}
	c.bytes -= int64(len(e.text))
	delete(c.entries, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// watch marks root as followed by a watcher; "" stops trusting entries.
func (c *fileCache) watch(root string) {
	c.mu.Lock()
	c.watched = root
	c.mu.Unlock()
}

func (c *fileCache) watching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watched != ""
}

// within reports whether path lies inside root. An empty root contains
// nothing.
func within(root, path string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *fileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
