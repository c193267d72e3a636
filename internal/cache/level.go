package cache

import "sync"

// LevelCache maps level checksums to their database IDs
type LevelCache struct {
	mu     sync.RWMutex
	levels map[string]uint
}

// NewLevelCache creates a new LevelCache
func NewLevelCache() *LevelCache {
	return &LevelCache{
		levels: make(map[string]uint),
	}
}

// Get retrieves a level ID by checksum
func (c *LevelCache) Get(checksum string) (uint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.levels[checksum]
	return id, ok
}

// Set stores a level ID by checksum
func (c *LevelCache) Set(checksum string, id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[checksum] = id
}

// Reset clears all entries, used when the database is swapped
func (c *LevelCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = make(map[string]uint)
}
