// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"errors"
	"testing"
)

func TestDedupCacheGetOrCreateReusesExistingEntry(t *testing.T) {
	c := newDedupCache[string]()
	creates := 0
	create := func() (ResourceID, error) {
		creates++
		return newResourceID(uint32(creates), 1), nil
	}
	acquire := func(ResourceID) bool { return true }

	id1, err := c.getOrCreate("k", acquire, create)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	id2, err := c.getOrCreate("k", acquire, create)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("same key returned different handles: %v != %v", id1, id2)
	}
	if creates != 1 {
		t.Fatalf("create called %d times, want 1", creates)
	}
}

func TestDedupCacheDistinctKeysCreateSeparately(t *testing.T) {
	c := newDedupCache[string]()
	creates := 0
	create := func() (ResourceID, error) {
		creates++
		return newResourceID(uint32(creates), 1), nil
	}
	acquire := func(ResourceID) bool { return true }

	idA, _ := c.getOrCreate("a", acquire, create)
	idB, _ := c.getOrCreate("b", acquire, create)
	if idA == idB {
		t.Fatal("distinct keys produced the same handle")
	}
	if creates != 2 {
		t.Fatalf("create called %d times, want 2", creates)
	}
	if c.size() != 2 {
		t.Fatalf("size() = %d, want 2", c.size())
	}
}

func TestDedupCacheStaleEntryRecreates(t *testing.T) {
	c := newDedupCache[string]()
	creates := 0
	create := func() (ResourceID, error) {
		creates++
		return newResourceID(uint32(creates), 1), nil
	}
	id1, err := c.getOrCreate("k", func(ResourceID) bool { return true }, create)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	// The cached handle never acquires, simulating a slot freed out
	// from under the cache (force-destroyed resource whose cache entry
	// was never evicted).
	acquire := func(id ResourceID) bool { return id != id1 }
	id2, err := c.getOrCreate("k", acquire, create)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected a fresh handle once the cached one failed to acquire")
	}
	if creates != 2 {
		t.Fatalf("create called %d times, want 2", creates)
	}
}

func TestDedupCacheEvictThenLookupMisses(t *testing.T) {
	c := newDedupCache[string]()
	create := func() (ResourceID, error) { return newResourceID(1, 1), nil }
	id, err := c.getOrCreate("k", func(ResourceID) bool { return true }, create)
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	c.evict("k")
	if _, ok := c.lookup("k"); ok {
		t.Fatal("lookup found an entry after evict")
	}
	_ = id
}

func TestDedupCacheCreateErrorNotCached(t *testing.T) {
	c := newDedupCache[string]()
	wantErr := errors.New("boom")
	_, err := c.getOrCreate("k", func(ResourceID) bool { return true }, func() (ResourceID, error) {
		return InvalidID, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if c.size() != 0 {
		t.Fatalf("size() = %d after failed create, want 0", c.size())
	}
}
