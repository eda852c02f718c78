// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package golden

import (
	"sort"
	"sync"
)

// Cache holds the goldens a watcher has ingested, keyed by remote reference.
// The zero value is not usable; use NewCache.
type Cache struct {
	data map[string]CachedGolden
	lock sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{
		data: map[string]CachedGolden{},
	}
}

// Put stores g under its remote reference, replacing any prior entry.
func (c *Cache) Put(g CachedGolden) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data[g.RemoteRef] = g
}

// Clean empties the cache.
func (c *Cache) Clean() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data = map[string]CachedGolden{}
}

func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

// Goldens returns a snapshot ordered by capture time, then id.
func (c *Cache) Goldens() []CachedGolden {
	c.lock.RLock()
	result := make([]CachedGolden, 0, len(c.data))
	for _, g := range c.data {
		result = append(result, g)
	}
	c.lock.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CapturedAt.Equal(result[j].CapturedAt) {
			return result[i].CapturedAt.Before(result[j].CapturedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (c *Cache) Find(id string) (CachedGolden, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for _, g := range c.data {
		if g.ID == id {
			return g, true
		}
	}
	return CachedGolden{}, false
}

// MarkUpdated flags the golden with the given id as promoted.  It returns
// false when no such golden is cached.
func (c *Cache) MarkUpdated(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	for ref, g := range c.data {
		if g.ID == id {
			g.Updated = true
			c.data[ref] = g
			return true
		}
	}
	return false
}
