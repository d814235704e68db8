// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"testing"
	"unsafe"
)

// fakeStagingBlock allocates a plain Go byte slice and registers it in
// rm's buffer slot table directly (bypassing createBuffer, which needs
// a live Vulkan device), so Store/AddPending/BeginFrame's allocation
// arithmetic and byte copying can be exercised without hardware.
func fakeStagingBlock(t *testing.T, rm *ResourceManager, size int) *stagingBlock {
	t.Helper()
	backing := make([]byte, size)
	br := bufferResource{
		desc:     BufferDesc{Size: uint64(size)},
		hostPtr:  unsafe.Pointer(&backing[0]),
		coherent: true,
	}
	id := rm.buffers.alloc(br, "fake-staging-block")
	ptr, ok := rm.buffers.get(id)
	if !ok {
		t.Fatal("alloc then get failed")
	}
	return &stagingBlock{id: id, br: ptr}
}

func newTestStagingAllocator(rm *ResourceManager, blockSize uint64) *StagingAllocator {
	return &StagingAllocator{rm: rm, blockSize: blockSize, frames: []*stagingFrame{{}}}
}

func TestStagingStoreExactlyFillsOneBlock(t *testing.T) {
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	sa := newTestStagingAllocator(rm, 64)
	sa.frames[0].uploads = append(sa.frames[0].uploads, fakeStagingBlock(t, rm, 8))

	data := []byte("12345678") // exactly the block's capacity
	region, n, err := sa.Store(data, 0)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n != len(data) {
		t.Fatalf("wrote %d bytes, want %d (exact-capacity request succeeds in one part)", n, len(data))
	}
	if region.Offset != 0 || region.Size != uint64(len(data)) {
		t.Fatalf("region = %+v, want offset 0 size %d", region, len(data))
	}
}

func TestStagingStoreOverCapacitySpansTwoBlocks(t *testing.T) {
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	sa := newTestStagingAllocator(rm, 64)
	small := fakeStagingBlock(t, rm, 4)
	big := fakeStagingBlock(t, rm, 64)
	sa.frames[0].uploads = append(sa.frames[0].uploads, small, big)

	data := []byte("123456") // 2 bytes over the first block's capacity
	r1, n1, err := sa.Store(data, 1)
	if err != nil {
		t.Fatalf("Store part 1: %v", err)
	}
	if n1 != 4 || r1.Buffer != Raw(small.id) {
		t.Fatalf("part 1 = %d bytes from %v, want 4 bytes from the small block", n1, r1.Buffer)
	}

	r2, n2, err := sa.Store(data[n1:], 1)
	if err != nil {
		t.Fatalf("Store part 2: %v", err)
	}
	if n2 != len(data)-n1 {
		t.Fatalf("part 2 = %d bytes, want remaining %d", n2, len(data)-n1)
	}
	if r2.Buffer != Raw(big.id) {
		t.Fatal("part 2 should have landed in the second (larger) block")
	}
}

func TestStagingSplitUploadProducesExpectedPartCount(t *testing.T) {
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	const blockSize = 8
	sa := newTestStagingAllocator(rm, blockSize)
	for i := 0; i < 4; i++ {
		sa.frames[0].uploads = append(sa.frames[0].uploads, fakeStagingBlock(t, rm, blockSize))
	}

	total := make([]byte, 26) // not a multiple of blockSize, forces a partial final part
	for i := range total {
		total[i] = byte(i)
	}
	minBlockSize := BufferMinBlockSize(uint64(len(total)))

	var parts []StagingRegion
	remaining := total
	for len(remaining) > 0 {
		region, n, err := sa.Store(remaining, minBlockSize)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		parts = append(parts, region)
		remaining = remaining[n:]
	}

	if len(parts) < 4 {
		t.Fatalf("got %d parts for a %d-byte upload through %d-byte blocks, want at least 4", len(parts), len(total), blockSize)
	}
	for i, p := range parts {
		if i < len(parts)-1 && p.Size != blockSize {
			t.Fatalf("part %d size = %d, want the full block size %d (only the last part may be a remainder)", i, p.Size, blockSize)
		}
	}
}

func TestStagingAddPendingThenBeginFrameFiresEvent(t *testing.T) {
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	sa := newTestStagingAllocator(rm, 64)
	block := fakeStagingBlock(t, rm, 64)
	sa.frames[0].readbacks = append(sa.frames[0].readbacks, block)

	want := []byte("readback-payload")
	copy(unsafe.Slice((*byte)(block.br.hostPtr), len(want)), want)

	region, err := sa.AddPending(uint64(len(want)), 0)
	if err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	var gotData []byte
	var gotMeta any
	fired := false
	sa.AddDataLoadedEvent([]StagingRegion{region}, "meta", func(data []byte, metadata any) {
		fired = true
		gotData = append([]byte{}, data...)
		gotMeta = metadata
	})

	sa.BeginFrame(0) // same slot -- fires what was registered above
	if !fired {
		t.Fatal("data-loaded event never fired on BeginFrame")
	}
	if string(gotData) != string(want) {
		t.Fatalf("callback data = %q, want %q", gotData, want)
	}
	if gotMeta != "meta" {
		t.Fatalf("callback metadata = %v, want %q", gotMeta, "meta")
	}
}

func TestStagingBeginFrameResetsBlockUsage(t *testing.T) {
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	sa := newTestStagingAllocator(rm, 64)
	block := fakeStagingBlock(t, rm, 8)
	sa.frames[0].uploads = append(sa.frames[0].uploads, block)

	if _, _, err := sa.Store([]byte("abcd"), 0); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if block.used == 0 {
		t.Fatal("Store should have advanced the block's used offset")
	}

	sa.BeginFrame(0)
	if block.used != 0 {
		t.Fatalf("used = %d after BeginFrame, want 0 (ring slot reset for reuse)", block.used)
	}
}

func TestBufferMinBlockSizeDividesEvenly(t *testing.T) {
	got := BufferMinBlockSize(200 << 20)
	want := (uint64(200<<20) + MaxBufferParts - 1) / MaxBufferParts
	if got != want {
		t.Fatalf("BufferMinBlockSize = %d, want %d", got, want)
	}
}

func TestImageMinBlockSizeFloorsAtRowPitch(t *testing.T) {
	// A tiny total with a large row pitch must not suggest a
	// min_block_size smaller than one scanline.
	got := ImageMinBlockSize(1024, 4096)
	if got != 4096 {
		t.Fatalf("ImageMinBlockSize = %d, want the row pitch 4096", got)
	}
}
