package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// CachingGateway wraps a Gateway with a content-addressed in-memory cache.
// Keys are sha256(dimension, text); identical (text, dimension) pairs always
// return the same vector without a backend call.
type CachingGateway struct {
	next       Gateway
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	maxEntries int
	ttl        time.Duration
}

type cacheEntry struct {
	vector    []float32
	createdAt time.Time
}

// NewCachingGateway creates a caching decorator around a gateway.
// maxEntries bounds memory; ttl expires stale entries via a sweep goroutine.
func NewCachingGateway(next Gateway, maxEntries int, ttl time.Duration) *CachingGateway {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	c := &CachingGateway{
		next:       next,
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}

	go c.sweepLoop()

	return c
}

// Embed returns a cached vector or delegates to the wrapped gateway.
func (c *CachingGateway) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	key := ContentKey(text, dimension)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry.vector, nil
	}

	vector, err := c.next.Embed(ctx, text, dimension)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		// Evict the oldest entry. Linear scan is acceptable at this size.
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = &cacheEntry{vector: vector, createdAt: time.Now()}
	c.mu.Unlock()

	return vector, nil
}

// Len returns the number of cached vectors.
func (c *CachingGateway) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweepLoop periodically removes expired entries.
func (c *CachingGateway) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.sweep()
	}
}

func (c *CachingGateway) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

// ContentKey is the content-address of an embedding request.
func ContentKey(text string, dimension int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", dimension, text)))
	return hex.EncodeToString(sum[:])
}

// Ensure CachingGateway implements Gateway.
var _ Gateway = (*CachingGateway)(nil)
