package application

import (
	"strings"
	"sync"
	"time"
)

// WindowCache stores recently materialized windows to avoid repeated rule
// expansion for identical queries while the underlying series remain
// unchanged. Writers invalidate the whole cache.
type WindowCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]windowCacheEntry
}

type windowCacheEntry struct {
	result    MaterializeResult
	expiresAt time.Time
}

func NewWindowCache(ttl time.Duration, maxEntries int, now func() time.Time) *WindowCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &WindowCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]windowCacheEntry),
	}
}

func (c *WindowCache) Get(key string) (MaterializeResult, bool) {
	if c == nil {
		return MaterializeResult{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return MaterializeResult{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return MaterializeResult{}, false
	}
	return cloneResult(entry.result), true
}

func (c *WindowCache) Store(key string, result MaterializeResult) {
	if c == nil {
		return
	}
	cloned := cloneResult(result)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = windowCacheEntry{result: cloned, expiresAt: expiry}
}

func (c *WindowCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]windowCacheEntry)
	c.mu.Unlock()
}

func (c *WindowCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *WindowCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneResult(result MaterializeResult) MaterializeResult {
	out := MaterializeResult{}
	if len(result.Occurrences) > 0 {
		out.Occurrences = make([]Occurrence, len(result.Occurrences))
		copy(out.Occurrences, result.Occurrences)
	}
	if len(result.Warnings) > 0 {
		out.Warnings = make([]OverlapWarning, len(result.Warnings))
		copy(out.Warnings, result.Warnings)
	}
	return out
}

func buildWindowCacheKey(params MaterializeParams) string {
	builder := strings.Builder{}
	builder.WriteString(params.WindowStart.UTC().Format(time.RFC3339))
	builder.WriteString("|")
	builder.WriteString(params.WindowEnd.UTC().Format(time.RFC3339))
	builder.WriteString("|")
	builder.WriteString(params.TimezoneName)
	return builder.String()
}
