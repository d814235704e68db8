// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import "testing"

func TestSlotTableAllocAndGet(t *testing.T) {
	var st slotTable[int]
	id := st.alloc(42, "answer")
	v, ok := st.get(id)
	if !ok || *v != 42 {
		t.Fatalf("get(%v) = %v, %v; want 42, true", id, v, ok)
	}
	if st.liveCount() != 1 {
		t.Fatalf("liveCount() = %d, want 1", st.liveCount())
	}
}

func TestSlotTableStaleHandleAfterFree(t *testing.T) {
	var st slotTable[int]
	id := st.alloc(1, "")
	if n, ok := st.release(id); !ok || n != 0 {
		t.Fatalf("release = %d, %v; want 0, true", n, ok)
	}
	st.free(id)

	if st.valid(id) {
		t.Fatal("handle still valid after free")
	}
	if _, ok := st.get(id); ok {
		t.Fatal("get succeeded on a freed handle")
	}
}

func TestSlotTableReusedSlotBumpsGeneration(t *testing.T) {
	var st slotTable[int]
	first := st.alloc(1, "")
	st.release(first)
	st.free(first)

	second := st.alloc(2, "")
	if first.Index() != second.Index() {
		t.Fatalf("expected slot reuse: first index %d, second index %d", first.Index(), second.Index())
	}
	if first.Generation() == second.Generation() {
		t.Fatal("reused slot did not bump generation")
	}
	if st.valid(first) {
		t.Fatal("stale handle from before reuse reads as valid")
	}
	if !st.valid(second) {
		t.Fatal("freshly allocated handle reads as invalid")
	}
}

func TestSlotTableRefCounting(t *testing.T) {
	var st slotTable[int]
	id := st.alloc(7, "")
	if !st.acquire(id) {
		t.Fatal("acquire failed on a live slot")
	}
	// refCount is now 2 (alloc starts at 1, plus one acquire).
	if n, ok := st.release(id); !ok || n != 1 {
		t.Fatalf("release = %d, %v; want 1, true", n, ok)
	}
	if n, ok := st.release(id); !ok || n != 0 {
		t.Fatalf("release = %d, %v; want 0, true", n, ok)
	}
}

func TestSlotTableAcquireOnStaleHandleFails(t *testing.T) {
	var st slotTable[int]
	id := st.alloc(1, "")
	st.release(id)
	st.free(id)
	if st.acquire(id) {
		t.Fatal("acquire succeeded on a stale handle")
	}
}

func TestResourceIDIndexAndGeneration(t *testing.T) {
	id := newResourceID(123, 456)
	if id.Index() != 123 {
		t.Fatalf("Index() = %d, want 123", id.Index())
	}
	if id.Generation() != 456 {
		t.Fatalf("Generation() = %d, want 456", id.Generation())
	}
}

func TestStringIDEqualByHashAndName(t *testing.T) {
	a := NewVertexID("position")
	b := NewVertexID("position")
	c := NewVertexID("normal")
	if !a.Equal(b) {
		t.Fatal("equal names under the same kind should compare equal")
	}
	if a.Equal(c) {
		t.Fatal("distinct names should not compare equal")
	}
}

func TestStringIDDistinctKindsNeverEqual(t *testing.T) {
	v := NewVertexID("x")
	u := NewUniformID("x")
	if v.stringID.Equal(u.stringID) {
		t.Fatal("same name under different kinds must not compare equal")
	}
}

func TestStringIDTruncatesLongNames(t *testing.T) {
	long := make([]byte, maxLen(kindVertex)+10)
	for i := range long {
		long[i] = 'a'
	}
	id := NewVertexID(string(long))
	if len(id.String()) != maxLen(kindVertex) {
		t.Fatalf("String() length = %d, want %d", len(id.String()), maxLen(kindVertex))
	}
}
