// Package cache holds the SeriesCache backends.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"crimestats/domain/crime"
)

type entry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is an in-process SeriesCache. Values are stored encoded so callers never
// share a *crime.Series with the cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*crime.Series, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	var series crime.Series
	if err := json.Unmarshal(e.data, &series); err != nil {
		return nil, false, err
	}
	return &series, true, nil
}

// Set stores a series; ttl <= 0 keeps it until Close.
func (c *MemoryCache) Set(_ context.Context, key string, series *crime.Series, ttl time.Duration) error {
	data, err := json.Marshal(series)
	if err != nil {
		return err
	}
	e := entry{data: data}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	return nil
}
