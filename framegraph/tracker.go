// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// imageRange is one subresource slice of an image shadow: the mip and
// array layer span it covers, and the access state that span was last
// touched with. Ranges are kept disjoint and sorted by base mip, then
// base layer; an access that only partially overlaps an existing range
// splits it so each resulting sub-range carries an independent state.
type imageRange struct {
	baseMip, mipCount     uint32
	baseLayer, layerCount uint32
	state                 accessState
}

func (r imageRange) overlaps(baseMip, mipCount, baseLayer, layerCount uint32) bool {
	mipEnd, oMipEnd := r.baseMip+r.mipCount, baseMip+mipCount
	layerEnd, oLayerEnd := r.baseLayer+r.layerCount, baseLayer+layerCount
	return r.baseMip < oMipEnd && baseMip < mipEnd && r.baseLayer < oLayerEnd && baseLayer < layerEnd
}

// shadow is the per-recorder record of the last access to one resource.
type shadow struct {
	isImage bool
	buffer  accessState
	ranges  []imageRange
}

// BufferAccess declares a task's intended use of a buffer resource.
type BufferAccess struct {
	Buffer  RawID
	Stages  vk.PipelineStageFlagBits
	Access  vk.AccessFlagBits
	IsWrite bool
	Offset  uint64
	Size    uint64 // 0 means the whole buffer
}

// ImageAccess declares a task's intended use of an image resource. A
// zero MipCount/LayerCount means the whole resource as described at
// creation.
type ImageAccess struct {
	Image      RawID
	Stages     vk.PipelineStageFlagBits
	Access     vk.AccessFlagBits
	Layout     vk.ImageLayout
	IsWrite    bool
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// ownershipRegistry is the engine-owned hook the tracker uses to
// thread cross-queue ownership transfers through the batch that last
// touched a resource (4.2 "Cross-queue transitions").
type ownershipRegistry interface {
	lastTouch(id RawID) (batch *CommandBatch, family uint32, ok bool)
	recordTouch(id RawID, batch *CommandBatch, family uint32)
}

// Tracker is the per-command-buffer local resource tracker: it owns
// one recorder's shadow map and emits barriers into that recorder's
// command buffer just-in-time, immediately before the task that needs
// them is recorded.
type Tracker struct {
	rm          *ResourceManager
	queueFamily uint32
	batch       *CommandBatch
	owners      ownershipRegistry
	shadows     map[RawID]*shadow
}

func newTracker(rm *ResourceManager, queueFamily uint32, batch *CommandBatch, owners ownershipRegistry) *Tracker {
	return &Tracker{rm: rm, queueFamily: queueFamily, batch: batch, owners: owners, shadows: make(map[RawID]*shadow)}
}

// DeclareBuffer realises the barrier (if any) needed before a, then
// updates the buffer's shadow. It panics in debug builds (logs in
// release) if the handle does not name a live buffer.
func (t *Tracker) DeclareBuffer(cmd vk.CommandBuffer, a BufferAccess) error {
	buf, ok := t.rm.vkBuffer(a.Buffer)
	if !ok {
		logOrPanic("DeclareBuffer", "", errStaleHandle)
		return newErr(ContractError, "DeclareBuffer", "", errStaleHandle)
	}
	size := a.Size
	if size == 0 {
		if desc, ok := t.rm.BufferDesc(a.Buffer); ok {
			size = desc.Size
		}
	}
	next := accessState{stages: a.Stages, access: a.Access, queueFamily: t.queueFamily, isWrite: a.IsWrite}

	sh, ok := t.shadows[a.Buffer]
	if !ok {
		sh = &shadow{}
		t.shadows[a.Buffer] = sh
		t.crossQueueAcquire(cmd, a.Buffer, barrierSpec{buffer: buf, bufferOffset: a.Offset, bufferSize: size}, next)
		sh.buffer = next
		return nil
	}

	prev := sh.buffer
	if needsBarrier(prev, next) {
		emitBarrier(cmd, barrierSpec{buffer: buf, bufferOffset: a.Offset, bufferSize: size, prev: prev, next: next})
		sh.buffer = next
	} else {
		sh.buffer = mergeReads(prev, next)
	}
	return nil
}

// DeclareImage realises the barrier(s) needed before a on whatever
// subresource ranges it touches, then updates the image's shadow.
func (t *Tracker) DeclareImage(cmd vk.CommandBuffer, a ImageAccess) error {
	img, _, ok := t.rm.vkImage(a.Image)
	if !ok {
		return logConfigError("DeclareImage", "", errStaleHandle)
	}
	desc, _ := t.rm.ImageDesc(a.Image)
	mipCount, layerCount := a.MipCount, a.LayerCount
	if mipCount == 0 {
		mipCount = mipExtent(desc)
	}
	if layerCount == 0 {
		layerCount = arrayLayers(desc)
	}
	next := accessState{stages: a.Stages, access: a.Access, layout: a.Layout, queueFamily: t.queueFamily, isWrite: a.IsWrite}

	sh, ok := t.shadows[a.Image]
	if !ok {
		sh = &shadow{isImage: true}
		t.shadows[a.Image] = sh
	}

	t.applyImageRange(cmd, a.Image, img, desc.aspectMask(), sh, a.BaseMip, mipCount, a.BaseLayer, layerCount, next)
	return nil
}

// applyImageRange splits existing ranges against the newly declared
// span so each resulting sub-range is evaluated against its own prior
// state independently, then records next as the span's new state.
func (t *Tracker) applyImageRange(cmd vk.CommandBuffer, id RawID, img vk.Image, aspect vk.ImageAspectFlagBits, sh *shadow, baseMip, mipCount, baseLayer, layerCount uint32, next accessState) {
	var untouched []imageRange
	var covered []imageRange
	for _, r := range sh.ranges {
		if !r.overlaps(baseMip, mipCount, baseLayer, layerCount) {
			untouched = append(untouched, r)
			continue
		}
		covered = append(covered, r)
	}

	if len(covered) == 0 {
		// First touch of this span: image-layout transitions always
		// discard any accumulated read scope on the old layout, and a
		// never-before-seen range starts from the creation-time
		// undefined layout.
		spec := barrierSpec{isImage: true, image: img, aspect: aspect, baseMip: baseMip, mipCount: mipCount, baseLayer: baseLayer, layerCount: layerCount}
		t.crossQueueAcquire(cmd, id, spec, next)
		sh.ranges = append(untouched, imageRange{baseMip, mipCount, baseLayer, layerCount, next})
		return
	}

	// Re-evaluate each previously covered sub-range against next;
	// for simplicity (conservative, never incorrect) we treat the
	// whole declared span as one access against the strictest prior
	// state among the covered ranges.
	prev := covered[0].state
	for _, c := range covered[1:] {
		if c.state.isWrite {
			prev = c.state
		}
	}
	if needsBarrier(prev, next) {
		emitBarrier(cmd, barrierSpec{isImage: true, image: img, aspect: aspect, baseMip: baseMip, mipCount: mipCount, baseLayer: baseLayer, layerCount: layerCount, prev: prev, next: next})
		sh.ranges = append(untouched, imageRange{baseMip, mipCount, baseLayer, layerCount, next})
	} else {
		merged := mergeReads(prev, next)
		sh.ranges = append(untouched, imageRange{baseMip, mipCount, baseLayer, layerCount, merged})
	}
}

// crossQueueAcquire handles a resource's first touch within this
// recorder. spec.image/spec.buffer and range fields are already
// filled in by the caller; prev/next are computed here. For images,
// the default previous state is the creation-time undefined layout,
// so a layout-transition barrier is always considered even absent any
// cross-queue concern. If the engine's ownership registry shows the
// resource was last touched by a different queue family, a two-sided
// transfer is attempted: a release barrier queued onto that previous
// batch and a matching acquire barrier here; if the previous batch is
// no longer available to append to, a conservative same-family
// barrier is used instead (no transfer recorded).
func (t *Tracker) crossQueueAcquire(cmd vk.CommandBuffer, id RawID, spec barrierSpec, next accessState) {
	prev := accessState{layout: vk.ImageLayoutUndefined, queueFamily: next.queueFamily}

	// A resource created with concurrent sharing needs no ownership
	// transfer between families.
	concurrent := false
	if spec.isImage {
		if d, ok := t.rm.ImageDesc(id); ok {
			concurrent = len(d.QueueFamilies) > 1
		}
	} else if d, ok := t.rm.BufferDesc(id); ok {
		concurrent = len(d.QueueFamilies) > 1
	}

	var prevBatch *CommandBatch
	var transferring bool
	if t.owners != nil {
		if b, family, ok := t.owners.lastTouch(id); ok && family != next.queueFamily && !concurrent {
			prev.queueFamily = family
			prevBatch = b
			transferring = true
		}
		t.owners.recordTouch(id, t.batch, t.queueFamily)
	}

	spec.prev, spec.next = prev, next
	if transferring && (prevBatch == nil || !prevBatch.addReleaseBarrier(spec)) {
		// No previous batch left to carry a release barrier: fall
		// back to a conservative same-family barrier.
		spec.prev.queueFamily, spec.next.queueFamily = next.queueFamily, next.queueFamily
	}
	if needsBarrier(spec.prev, spec.next) {
		emitBarrier(cmd, spec)
	}
}
