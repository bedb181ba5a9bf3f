// Package cache provides a TTL cache for aggregation results with
// single-flight loading: concurrent requests for the same key share one
// upstream computation instead of stampeding the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cityair/conductor/internal/log"
)

// Loader computes a value for a cache miss.
type Loader func(ctx context.Context) (any, error)

// Cache is a process-local result cache. Entries expire ttl after they were
// loaded; failed loads are never cached.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl    time.Duration
	now    func() time.Time
	logger log.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	ready     chan struct{}
	value     any
	err       error
	expiresAt time.Time
}

// New creates a cache whose entries live for ttl.
func New(ttl time.Duration, logger log.Logger) *Cache {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Key builds a canonical cache key from a tool name and its normalized
// arguments. Map keys marshal in sorted order, so two calls with the same
// arguments always produce the same key.
func Key(tool string, params map[string]any) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		// Normalized arguments are plain strings, numbers, bools, and
		// string slices; this cannot happen for validated input.
		return fmt.Sprintf("%s\x00%v", tool, params)
	}
	return tool + "\x00" + string(encoded)
}

// Fetch returns the cached value for key, or runs loader to compute it.
// Concurrent callers for the same key block on a single loader invocation
// and all receive its result. A loader failure is returned to every waiter
// and leaves the key uncached, so the next call retries.
func (c *Cache) Fetch(ctx context.Context, key string, loader Loader) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if !c.expired(e) {
			c.mu.Unlock()
			return c.wait(ctx, key, e, loader)
		}
		delete(c.entries, key)
	}

	e := &entry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()
	c.misses.Add(1)

	e.value, e.err = c.load(ctx, key, loader)
	if e.err == nil {
		e.expiresAt = c.now().Add(c.ttl)
	} else {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	close(e.ready)

	return e.value, e.err
}

// wait blocks until the in-flight load for e finishes or ctx is done.
func (c *Cache) wait(ctx context.Context, key string, e *entry, loader Loader) (any, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}

	// The entry may have expired while we waited.
	if c.expired(e) {
		return c.Fetch(ctx, key, loader)
	}
	c.hits.Add(1)
	return e.value, nil
}

// load runs the loader, retrying once on failure.
func (c *Cache) load(ctx context.Context, key string, loader Loader) (any, error) {
	value, err := loader(ctx)
	if err == nil {
		return value, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("cache load failed, retrying", "key", key, "error", err)
	value, retryErr := loader(ctx)
	if retryErr != nil {
		return nil, fmt.Errorf("cache load for %q: %w", key, retryErr)
	}
	return value, nil
}

// expired reports whether a completed entry is past its TTL. An entry still
// loading is never expired.
func (c *Cache) expired(e *entry) bool {
	select {
	case <-e.ready:
		return e.err != nil || c.now().After(e.expiresAt)
	default:
		return false
	}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll empties the cache. In-flight loads finish and deliver to
// their waiters, but their results are not retained.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.logger.Info("cache invalidated")
}

// Stats reports cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len reports the number of entries, including in-flight loads.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
