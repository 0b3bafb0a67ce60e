package resource

import (
	"bytes"
	"os"
	"sync"
)

// FileCache is a read-through in-memory cache of file contents, shared by
// the independent variant passes of one build so each source file is read
// from disk once. Load hands out copies so passes can rewrite bytes freely.
type FileCache struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewFileCache creates a new cache.
func NewFileCache() *FileCache {
	return &FileCache{
		data: make(map[string][]byte),
	}
}

// Load returns the contents of path, reading it on a miss.
func (c *FileCache) Load(path string) ([]byte, error) {
	if c == nil {
		return os.ReadFile(path)
	}
	if data, ok := c.Get(path); ok {
		return bytes.Clone(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.Set(path, data)
	return bytes.Clone(data), nil
}

// Get retrieves an item from cache.
func (c *FileCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.data[key]
	return data, ok
}

// Set stores an item in cache.
func (c *FileCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Forget drops one entry, e.g. after the file changed on disk.
func (c *FileCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}
