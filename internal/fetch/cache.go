package fetch

import (
	"context"
	"sync"
	"time"

	"dashplayd/internal/logger"
)

// Cache is a thread-safe, byte-bounded segment cache with TTL eviction. It
// keeps recently fetched segments around so a seek back into already-watched
// material does not refetch them.
type Cache struct {
	mutex    sync.RWMutex
	entries  map[string]cacheEntry
	used     int
	ttl      time.Duration
	maxBytes int
	logger   logger.Logger

	// Control
	ctx    context.Context
	cancel context.CancelFunc
}

type cacheEntry struct {
	data    []byte
	addedAt time.Time
}

// NewCache creates a cache holding entries for at most ttl, bounded to
// maxBytes of payload in total. A maxBytes of zero means unbounded.
func NewCache(log logger.Logger, ttl time.Duration, maxBytes int) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		maxBytes: maxBytes,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the background eviction worker.
func (c *Cache) Start() {
	c.logger.Infof("Starting segment cache eviction worker...")
	go c.evictionWorker()
}

// Stop shuts down the eviction worker.
func (c *Cache) Stop() {
	c.logger.Infof("Stopping segment cache eviction worker...")
	c.cancel()
}

// Get retrieves a segment, reporting a miss once its TTL has passed.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, found := c.entries[key]
	if !found || time.Since(entry.addedAt) > c.ttl {
		return nil, false
	}
	return entry.data, true
}

// Set stores a segment, evicting older entries until the payload fits.
// Payloads larger than the whole cache are not stored at all.
func (c *Cache) Set(key string, data []byte) {
	if c.maxBytes > 0 && len(data) > c.maxBytes {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if old, found := c.entries[key]; found {
		c.used -= len(old.data)
	}

	for c.maxBytes > 0 && c.used+len(data) > c.maxBytes {
		c.dropOldestLocked()
	}

	c.entries[key] = cacheEntry{data: data, addedAt: time.Now()}
	c.used += len(data)
	c.logger.Debugf("Cached segment %s, size: %d bytes, cache total: %d bytes", key, len(data), c.used)
}

// Len returns the number of cached segments.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func (c *Cache) dropOldestLocked() {
	var oldestKey string
	var oldestAt time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.addedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.addedAt
		}
	}
	if oldestKey == "" {
		return
	}
	c.used -= len(c.entries[oldestKey].data)
	delete(c.entries, oldestKey)
}

// evictionWorker runs in the background to clean up expired segments.
func (c *Cache) evictionWorker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Infof("Eviction worker stopped.")
			return
		case <-ticker.C:
			c.runEviction()
		}
	}
}

func (c *Cache) runEviction() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	evicted := 0
	for key, entry := range c.entries {
		if time.Since(entry.addedAt) > c.ttl {
			c.used -= len(entry.data)
			delete(c.entries, key)
			evicted++
		}
	}

	if evicted > 0 {
		c.logger.Infof("Evicted %d expired segments. Current cache size: %d segments.", evicted, len(c.entries))
	}
}
