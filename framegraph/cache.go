// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import "sync"

// dedupCache maps a structural cache key to the handle of the one
// resource created for it, so identical samplers, descriptor-set
// layouts, and pipeline-resource sets are created once and shared by
// reference count thereafter. Render passes are not cached: rendering
// uses dynamic rendering and creates no VkRenderPass objects.
type dedupCache[K comparable] struct {
	mu      sync.RWMutex
	byKey   map[K]ResourceID
}

func newDedupCache[K comparable]() *dedupCache[K] {
	return &dedupCache[K]{byKey: make(map[K]ResourceID)}
}

// lookup returns the existing handle for key, if any, without creating
// anything. The caller still must acquire a reference on it.
func (c *dedupCache[K]) lookup(key K) (ResourceID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byKey[key]
	return id, ok
}

// getOrCreate returns the cached handle for key, acquiring a reference
// on it, or calls create to produce a fresh one and registers it.
// create runs under the write lock after the key is checked again, so
// concurrent callers for the same key never both create: the later
// one finds and acquires the handle the earlier one registered.
func (c *dedupCache[K]) getOrCreate(key K, acquire func(ResourceID) bool, create func() (ResourceID, error)) (ResourceID, error) {
	c.mu.RLock()
	if id, ok := c.byKey[key]; ok {
		c.mu.RUnlock()
		if acquire(id) {
			return id, nil
		}
		// Stale entry (resource was force-freed out from under the
		// cache); fall through and recreate it.
	} else {
		c.mu.RUnlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byKey[key]; ok {
		if acquire(id) {
			return id, nil
		}
		delete(c.byKey, key)
	}
	id, err := create()
	if err != nil {
		return InvalidID, err
	}
	c.byKey[key] = id
	return id, nil
}

// evict removes key from the cache without releasing the resource; the
// caller is responsible for the matching release() once the resource
// itself is being torn down.
func (c *dedupCache[K]) evict(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, key)
}

func (c *dedupCache[K]) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}
