package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ETagCache persists the last validator token seen per URL so repeat crawls
// can issue conditional requests. The backing file is a flat JSON object;
// corruption is non-fatal and resets the cache to empty.
type ETagCache struct {
	mu     sync.Mutex
	path   string
	data   map[string]string
	logger *zap.Logger
}

// NewETagCache loads (or initializes) the cache at path.
func NewETagCache(path string, logger *zap.Logger) *ETagCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ETagCache{
		path:   path,
		data:   make(map[string]string),
		logger: logger,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("validator cache unreadable; starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return c
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		logger.Warn("validator cache corrupt; starting empty",
			zap.String("path", path), zap.Error(err))
		c.data = make(map[string]string)
	}
	return c
}

// Get returns the stored validator for url, if any.
func (c *ETagCache) Get(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.data[url]
	return token, ok
}

// Set stores a validator for url, or removes the entry when token is empty.
// The backing file is rewritten on every change; write failures are logged
// and otherwise ignored so a read-only disk never stops a crawl.
func (c *ETagCache) Set(url, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		delete(c.data, url)
	} else {
		c.data[url] = token
	}
	if err := c.flushLocked(); err != nil {
		c.logger.Warn("validator cache write failed", zap.String("path", c.path), zap.Error(err))
	}
}

// Len reports the number of cached validators.
func (c *ETagCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *ETagCache) flushLocked() error {
	raw, err := json.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("marshal validator cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write validator cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace validator cache: %w", err)
	}
	return nil
}
