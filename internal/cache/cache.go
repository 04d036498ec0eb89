// Package cache holds encoded rating reads in front of the persistence store.
// Writers invalidate keys synchronously, so a cache never serves a record the
// same process has already deleted.
package cache

import (
	"context"
	"sync"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Delete(context.Context, string) error              { return nil }

// DefaultMaxEntries bounds a Memory cache when no limit is given. Entries
// hold whole encoded ratings, photos included.
const DefaultMaxEntries = 256

// Memory is a process-local TTL cache holding at most maxEntries values.
// Expired entries are swept on Set at most once per ttl; when the cache is
// still full, the entry closest to expiry makes room.
type Memory struct {
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	m          map[string]entry
	nextSweep  time.Time
	now        func() time.Time
}

type entry struct {
	val []byte
	exp time.Time
}

func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Memory{
		ttl:        ttl,
		maxEntries: maxEntries,
		m:          make(map[string]entry),
		now:        time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if now.After(e.exp) {
		c.mu.Lock()
		// re-check: a fresh Set may have landed since the read lock
		if cur, ok := c.m[key]; ok && now.After(cur.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	return e.val, true, nil
}

func (c *Memory) Set(_ context.Context, key string, val []byte) error {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.m[key]
	if !exists && (len(c.m) >= c.maxEntries || !now.Before(c.nextSweep)) {
		c.sweep(now)
		if len(c.m) >= c.maxEntries {
			c.evictOldest()
		}
	}

	c.m[key] = entry{val: val, exp: now.Add(c.ttl)}
	return nil
}

// sweep drops expired entries. Callers hold mu.
func (c *Memory) sweep(now time.Time) {
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
		}
	}
	c.nextSweep = now.Add(c.ttl)
}

// evictOldest drops the entry that expires first. Callers hold mu.
func (c *Memory) evictOldest() {
	var (
		oldest string
		exp    time.Time
		found  bool
	)
	for k, e := range c.m {
		if !found || e.exp.Before(exp) {
			oldest, exp, found = k, e.exp, true
		}
	}
	if found {
		delete(c.m, oldest)
	}
}

func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// RatingKey is the cache key of one encoded rating.
func RatingKey(id string) string {
	return "hotchoc:rating:v1:" + id
}
