// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"hash/maphash"
	"sync"
)

// ResourceID is a 64-bit generational handle: the high 32 bits are the
// slot index, the low 32 bits are the slot's generation at the time
// this handle was issued. A handle is valid iff its generation equals
// the slot's current generation.
type ResourceID uint64

// InvalidID is the zero handle; no valid slot ever has generation 0,
// since generations start at 1 (see slotTable.alloc).
const InvalidID ResourceID = 0

func newResourceID(index uint32, generation uint32) ResourceID {
	return ResourceID(uint64(index)<<32 | uint64(generation))
}

// Index returns the slot index this handle names.
func (id ResourceID) Index() uint32 { return uint32(id >> 32) }

// Generation returns the generation this handle was issued against.
func (id ResourceID) Generation() uint32 { return uint32(id) }

// RawID is a handle that does not own a reference: looking a raw
// handle up never changes a refcount. RawID and OwnedID are both
// aliases of ResourceID, so the compiler does not tell them apart and
// passing a RawID to a Release call decrements the count like an
// OwnedID would.
type RawID = ResourceID

// OwnedID is a handle that was returned by a create_<kind> or
// cache_<kind> operation and therefore carries one reference. Calling
// Release on the resource manager with an OwnedID returns the slot's
// reference.
type OwnedID = ResourceID

// Raw converts an owned handle to a raw one for lookups that must not
// affect the refcount (e.g. passing a resource into a task payload).
func Raw(id OwnedID) RawID { return id }

////////////////////////////////////////////////////////////////////////
// Generational slot table

// slot is one entry of a slotTable. T is the resource payload kind
// (Buffer, Image, Pipeline, ...).
type slot[T any] struct {
	generation uint32
	refCount   int32
	live       bool
	debugName  string
	payload    T
}

// slotTable is a flat generational array of resources of one kind,
// shared process-wide behind the resource manager's lock. A growable
// slice of arbitrary resource kind T, rather than a fixed-size array
// per concrete kind.
type slotTable[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32 // freed indices available for reuse
}

// alloc reserves a slot, bumping its generation, and returns the
// resulting handle. Reused slots always bump generation first so a
// stale handle from before the reuse never matches.
func (t *slotTable[T]) alloc(payload T, debugName string) ResourceID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[idx].generation++
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{generation: 1})
	}
	s := &t.slots[idx]
	s.payload = payload
	s.refCount = 1
	s.live = true
	s.debugName = debugName
	return newResourceID(idx, s.generation)
}

// valid reports whether id currently names a live slot.
func (t *slotTable[T]) valid(id ResourceID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.validLocked(id)
}

func (t *slotTable[T]) validLocked(id ResourceID) bool {
	idx := id.Index()
	if int(idx) >= len(t.slots) {
		return false
	}
	s := &t.slots[idx]
	return s.live && s.generation == id.Generation()
}

// get returns a pointer to the slot's payload; the second return value
// is false if the handle is stale or out of range. The pointer is
// stable for the lifetime of the slot: slots never move and the
// backing slice is only appended to, never shrunk.
func (t *slotTable[T]) get(id ResourceID) (*T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.validLocked(id) {
		return nil, false
	}
	return &t.slots[id.Index()].payload, true
}

// acquire increments the refcount of a live slot, returning false if
// the handle is stale.
func (t *slotTable[T]) acquire(id ResourceID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.validLocked(id) {
		return false
	}
	t.slots[id.Index()].refCount++
	return true
}

// release decrements the refcount, returning the new count and whether
// the handle was valid. A count of zero means the caller (resource
// manager) should destroy the payload and free the slot with free().
func (t *slotTable[T]) release(id ResourceID) (count int32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.validLocked(id) {
		return 0, false
	}
	s := &t.slots[id.Index()]
	s.refCount--
	return s.refCount, true
}

// free marks the slot dead and recycles its index. Must only be called
// once refCount has reached zero and any referencing batch has
// completed.
func (t *slotTable[T]) free(id ResourceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := id.Index()
	if int(idx) >= len(t.slots) {
		return
	}
	s := &t.slots[idx]
	if !s.live || s.generation != id.Generation() {
		return
	}
	s.live = false
	var zero T
	s.payload = zero
	t.free = append(t.free, idx)
}

// liveCount returns the number of currently live slots.
func (t *slotTable[T]) liveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].live {
			n++
		}
	}
	return n
}

////////////////////////////////////////////////////////////////////////
// String-id

// stringIDKind distinguishes string-id kinds that share a
// representation but must never compare equal across kinds.
type stringIDKind uint8

const (
	kindUniform stringIDKind = iota
	kindDescriptorSet
	kindRenderTarget
	kindVertex
	kindCommandBatch
)

var seedOnce sync.Once
var hashSeed maphash.Seed

func seed() maphash.Seed {
	seedOnce.Do(func() { hashSeed = maphash.MakeSeed() })
	return hashSeed
}

// stringID is the shared representation behind every <Kind>ID type: an
// inline-stored name plus a hash of it, so equality is a cheap
// (hash, name) compare instead of a string compare in the hot path.
type stringID struct {
	kind stringIDKind
	hash uint64
	name string // capped to maxLen(kind) by newStringID
}

func maxLen(k stringIDKind) int {
	switch k {
	case kindRenderTarget, kindCommandBatch:
		return 64
	default:
		return 32
	}
}

func newStringID(kind stringIDKind, name string) stringID {
	if n := maxLen(kind); len(name) > n {
		name = name[:n]
	}
	var h maphash.Hash
	h.SetSeed(seed())
	h.WriteByte(byte(kind))
	h.WriteString(name)
	return stringID{kind: kind, hash: h.Sum64(), name: name}
}

// Equal compares by (hash, name, kind); the hash short-circuits almost
// every unequal comparison before the string compare runs.
func (s stringID) Equal(o stringID) bool {
	return s.kind == o.kind && s.hash == o.hash && s.name == o.name
}

func (s stringID) String() string { return s.name }

// UniformID, DescriptorSetID, RenderTargetID, VertexID, and
// CommandBatchID are distinct string-id kinds sharing stringID's
// representation.
type (
	UniformID       struct{ stringID }
	DescriptorSetID struct{ stringID }
	RenderTargetID  struct{ stringID }
	VertexID        struct{ stringID }
	CommandBatchID  struct{ stringID }
)

func NewUniformID(name string) UniformID { return UniformID{newStringID(kindUniform, name)} }
func NewDescriptorSetID(name string) DescriptorSetID {
	return DescriptorSetID{newStringID(kindDescriptorSet, name)}
}
func NewRenderTargetID(name string) RenderTargetID {
	return RenderTargetID{newStringID(kindRenderTarget, name)}
}
func NewVertexID(name string) VertexID { return VertexID{newStringID(kindVertex, name)} }
func NewCommandBatchID(name string) CommandBatchID {
	return CommandBatchID{newStringID(kindCommandBatch, name)}
}
