// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// MaxBufferParts and MaxImageParts bound how many Store calls a caller
// is expected to need to fully upload one buffer or image: the
// suggested min_block_size is total size divided by the relevant
// constant (row pitch for images, whichever is larger), so a caller
// iterating Store in a loop converges in a small, predictable number
// of parts instead of one-block-per-byte.
const (
	MaxBufferParts = 16
	MaxImageParts  = 64

	// defaultStagingBlockSize is the ring's default block size when the
	// caller doesn't specify one.
	defaultStagingBlockSize uint64 = 64 << 20
)

// StagingRegion names a contiguous byte range of one backing staging
// buffer, as returned by Store or AddPending.
type StagingRegion struct {
	Buffer RawID
	Offset uint64
	Size   uint64
}

// stagingBlock is one fixed-size mapped buffer in a ring slot's
// upload or readback list.
type stagingBlock struct {
	id   OwnedID
	br   *bufferResource
	used uint64
}

type dataLoadedEvent struct {
	parts    []StagingRegion
	metadata any
	callback func(data []byte, metadata any)
}

// stagingFrame is one slot of the per-frame ring: its own upload and
// readback block lists.
type stagingFrame struct {
	mu        sync.Mutex
	uploads   []*stagingBlock
	readbacks []*stagingBlock
	events    []dataLoadedEvent
}

// StagingAllocator is the per-frame host-visible ring of suballocated
// buffers used to marshal data to and from device-local resources.
// Its mapped-pointer byte copy follows the same shape as the rest of
// this package's host-visible buffer handling, and its first-fit
// block allocator generalizes from texture-only staging to
// buffer-or-image staging over an arbitrary number of frames in
// flight.
type StagingAllocator struct {
	gp *GPU
	dv *Device
	rm *ResourceManager

	blockSize uint64
	frames    []*stagingFrame
	current   int
}

// NewStagingAllocator creates an allocator with one ring slot per
// frame in flight. blockSize of 0 uses the 64 MiB default.
func NewStagingAllocator(gp *GPU, dv *Device, rm *ResourceManager, framesInFlight int, blockSize uint64) *StagingAllocator {
	if framesInFlight <= 0 {
		framesInFlight = 1
	}
	if blockSize == 0 {
		blockSize = defaultStagingBlockSize
	}
	frames := make([]*stagingFrame, framesInFlight)
	for i := range frames {
		frames[i] = &stagingFrame{}
	}
	return &StagingAllocator{gp: gp, dv: dv, rm: rm, blockSize: blockSize, frames: frames}
}

// BeginFrame selects the ring slot for frameIndex, fires every
// data-loaded event registered the last time this slot was used (its
// GPU-side reads are guaranteed complete, since the caller is not
// expected to reuse a slot until framesInFlight frames have elapsed),
// and resets the slot's blocks for reuse. Every registered event has
// its parts concatenated into one contiguous view and its callback
// invoked synchronously on the calling goroutine before the slot is
// handed back out.
func (sa *StagingAllocator) BeginFrame(frameIndex int) {
	sa.current = frameIndex % len(sa.frames)
	f := sa.frames[sa.current]

	f.mu.Lock()
	events := f.events
	f.events = nil
	for _, b := range f.uploads {
		b.used = 0
	}
	for _, b := range f.readbacks {
		b.used = 0
	}
	f.mu.Unlock()

	for _, ev := range events {
		sa.fireEvent(ev)
	}
}

func (sa *StagingAllocator) fireEvent(ev dataLoadedEvent) {
	total := uint64(0)
	for _, p := range ev.parts {
		total += p.Size
	}
	data := make([]byte, 0, total)
	for _, p := range ev.parts {
		br, ok := sa.rm.rawBuffer(p.Buffer)
		if !ok || br.hostPtr == nil {
			continue
		}
		invalidateRange(sa.dv, br, p.Offset, p.Size)
		src := unsafe.Slice((*byte)(unsafe.Add(br.hostPtr, p.Offset)), p.Size)
		data = append(data, src...)
	}
	ev.callback(data, ev.metadata)
}

// Store copies up to len(data) bytes into the current frame's upload
// ring, writing never less than minBlockSize unless the whole input
// fits in the remaining space of the block found. Returns the region
// written and the number of bytes actually written; callers iterate,
// advancing their own source offset by the returned count, until the
// whole input has been staged.
func (sa *StagingAllocator) Store(data []byte, minBlockSize uint64) (StagingRegion, int, error) {
	if len(data) == 0 {
		return StagingRegion{}, 0, nil
	}
	want := uint64(len(data))
	if minBlockSize == 0 || minBlockSize > want {
		minBlockSize = want
	}

	f := sa.frames[sa.current]
	f.mu.Lock()
	defer f.mu.Unlock()

	block, err := sa.findOrGrow(&f.uploads, minBlockSize, vk.BufferUsageTransferSrcBit)
	if err != nil {
		return StagingRegion{}, 0, err
	}

	avail := block.br.desc.Size - block.used
	n := want
	if n > avail {
		n = avail
	}
	if n < minBlockSize {
		return StagingRegion{}, 0, newErr(ExhaustionError, "StagingAllocator.Store", "", errStagingBudget)
	}

	off := block.used
	dst := unsafe.Slice((*byte)(unsafe.Add(block.br.hostPtr, off)), n)
	copy(dst, data[:n])
	if err := flushRange(sa.dv, block.br, off, n); err != nil {
		return StagingRegion{}, 0, err
	}
	block.used += n

	return StagingRegion{Buffer: Raw(block.id), Offset: off, Size: n}, int(n), nil
}

// AddPending reserves a range in the current frame's readback ring
// for a future GPU-to-host copy, returning the region for the caller
// to target with a CopyParams.DstBuffer/DstOffset.
func (sa *StagingAllocator) AddPending(size uint64, minBlockSize uint64) (StagingRegion, error) {
	if size == 0 {
		return StagingRegion{}, newErr(ConfigError, "StagingAllocator.AddPending", "", errZeroSize)
	}
	if minBlockSize == 0 || minBlockSize > size {
		minBlockSize = size
	}

	f := sa.frames[sa.current]
	f.mu.Lock()
	defer f.mu.Unlock()

	block, err := sa.findOrGrow(&f.readbacks, minBlockSize, vk.BufferUsageTransferDstBit)
	if err != nil {
		return StagingRegion{}, err
	}

	avail := block.br.desc.Size - block.used
	n := size
	if n > avail {
		n = avail
	}
	off := block.used
	block.used += n
	return StagingRegion{Buffer: Raw(block.id), Offset: off, Size: n}, nil
}

// AddDataLoadedEvent stores callback keyed by the current frame; it
// fires the next time this ring slot reaches BeginFrame, with parts
// concatenated into one contiguous []byte in the order given.
// Callers normally tie the readback's owning batch to this event
// indirectly -- by not calling BeginFrame on the same slot again
// until the batch's fence has signalled -- but a caller that holds a
// *CommandBatch reference can additionally use OnComplete for a
// tighter, fence-accurate callback instead of waiting on ring reuse.
func (sa *StagingAllocator) AddDataLoadedEvent(parts []StagingRegion, metadata any, callback func(data []byte, metadata any)) {
	f := sa.frames[sa.current]
	f.mu.Lock()
	f.events = append(f.events, dataLoadedEvent{
		parts:    append([]StagingRegion{}, parts...),
		metadata: metadata,
		callback: callback,
	})
	f.mu.Unlock()
}

// findOrGrow returns the first block in list with at least
// minBlockSize bytes remaining, allocating a new block sized
// max(sa.blockSize, minBlockSize) if none qualifies.
func (sa *StagingAllocator) findOrGrow(list *[]*stagingBlock, minBlockSize uint64, usage vk.BufferUsageFlagBits) (*stagingBlock, error) {
	for _, b := range *list {
		if b.br.desc.Size-b.used >= minBlockSize {
			return b, nil
		}
	}
	size := sa.blockSize
	if minBlockSize > size {
		size = minBlockSize
	}
	id, err := sa.rm.CreateBuffer(BufferDesc{Size: size, Usage: usage, HostVisible: true}, "staging-block")
	if err != nil {
		return nil, err
	}
	br, _ := sa.rm.rawBuffer(Raw(id))
	block := &stagingBlock{id: id, br: br}
	*list = append(*list, block)
	return block, nil
}

// Destroy releases every backing buffer across every ring slot. The
// caller must ensure no in-flight batch still references them.
func (sa *StagingAllocator) Destroy() {
	for _, f := range sa.frames {
		f.mu.Lock()
		for _, b := range f.uploads {
			sa.rm.ReleaseBuffer(b.id)
		}
		for _, b := range f.readbacks {
			sa.rm.ReleaseBuffer(b.id)
		}
		f.uploads = nil
		f.readbacks = nil
		f.mu.Unlock()
	}
}

// BufferMinBlockSize and ImageMinBlockSize compute a reasonable
// minBlockSize argument for Store: buffer uploads divide total size by
// MaxBufferParts; image uploads additionally floor at one row pitch,
// since a part smaller than a single row can never hold a complete
// scanline.
func BufferMinBlockSize(total uint64) uint64 {
	return divCeil(total, MaxBufferParts)
}

func ImageMinBlockSize(total, rowPitch uint64) uint64 {
	m := divCeil(total, MaxImageParts)
	if rowPitch > m {
		return rowPitch
	}
	return m
}

func divCeil(n, d uint64) uint64 {
	if d == 0 {
		return n
	}
	return (n + d - 1) / d
}

const errStagingBudget errSentinel = "staging ring exhausted: request exceeds largest remaining block"
