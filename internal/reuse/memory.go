package reuse

import (
	"context"
	"sync"
)

// MemoryCache is the in-process ReuseCache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory returns an empty MemoryCache.
func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

// Get returns the cached website for (name, city), if any.
func (c *MemoryCache) Get(_ context.Context, name, city string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.entries[Key(name, city)]
	return url, ok, nil
}

// Put records a validated website for (name, city).
func (c *MemoryCache) Put(_ context.Context, name, city, websiteURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key(name, city)] = websiteURL
	return nil
}
