// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/ayberkgerey5/framegraphx/internal/logx"
)

type ownerRecord struct {
	batch  *CommandBatch
	family uint32
}

// Engine is the batch submission engine: it owns the device's queues,
// a fence cache, a command-buffer pool per queue family, a free list
// of reusable semaphores, and the per-queue pending/submitted lists.
// A single mutex guards pending/submitted/semaphore allocation;
// additionally every queue has its own mutex (inside queueBinding)
// used only around vkQueueSubmit, so submission is serialized per
// queue without blocking unrelated queues.
type Engine struct {
	dv *Device
	rm *ResourceManager

	fences *fenceCache

	poolsMu sync.Mutex
	pools   map[uint32]*cmdBufCache

	mu        sync.Mutex
	pending   map[QueueKind][]*CommandBatch
	submitted []*CommandBatch
	freeSems  []vk.Semaphore
	poisoned  error

	ownershipMu sync.Mutex
	ownership   map[RawID]ownerRecord
}

// NewEngine creates a submission engine over dv.
func NewEngine(dv *Device, rm *ResourceManager) *Engine {
	return &Engine{
		dv:        dv,
		rm:        rm,
		fences:    newFenceCache(dv),
		pools:     make(map[uint32]*cmdBufCache),
		pending:   make(map[QueueKind][]*CommandBatch),
		ownership: make(map[RawID]ownerRecord),
	}
}

// NewBatch creates a fresh batch on the given logical queue, wired to
// this engine for cross-queue semaphore allocation and ownership
// tracking.
func (e *Engine) NewBatch(id CommandBatchID, queue QueueKind) *CommandBatch {
	return newCommandBatch(id, queue, e.rm, e.dv, e)
}

func (e *Engine) poolFor(family uint32) (*cmdBufCache, error) {
	e.poolsMu.Lock()
	defer e.poolsMu.Unlock()
	if p, ok := e.pools[family]; ok {
		return p, nil
	}
	p, err := newCmdBufCache(e.dv, family)
	if err != nil {
		return nil, err
	}
	e.pools[family] = p
	return p, nil
}

func (e *Engine) acquireSemaphore() (vk.Semaphore, error) {
	e.mu.Lock()
	if n := len(e.freeSems); n > 0 {
		s := e.freeSems[n-1]
		e.freeSems = e.freeSems[:n-1]
		e.mu.Unlock()
		return s, nil
	}
	e.mu.Unlock()
	var s vk.Semaphore
	ret := vk.CreateSemaphore(e.dv.Device, &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}, nil, &s)
	if ret != vk.Success {
		return vk.NullSemaphore, newErr(DeviceError, "acquireSemaphore", "", vkErr("vkCreateSemaphore", ret))
	}
	return s, nil
}

func (e *Engine) releaseSemaphore(s vk.Semaphore) {
	e.mu.Lock()
	e.freeSems = append(e.freeSems, s)
	e.mu.Unlock()
}

// ownershipRegistry implementation, shared process-wide by every
// recorder's Tracker so cross-queue transfers can find the batch that
// last touched a resource.

func (e *Engine) lastTouch(id RawID) (*CommandBatch, uint32, bool) {
	e.ownershipMu.Lock()
	defer e.ownershipMu.Unlock()
	r, ok := e.ownership[id]
	if !ok {
		return nil, 0, false
	}
	return r.batch, r.family, true
}

func (e *Engine) recordTouch(id RawID, batch *CommandBatch, family uint32) {
	e.ownershipMu.Lock()
	defer e.ownershipMu.Unlock()
	e.ownership[id] = ownerRecord{batch: batch, family: family}
}

// Enqueue moves a Baked batch into the queue's pending list. Called by
// a recorder's Execute once it finishes traversal and ends its command
// buffer(s).
func (e *Engine) Enqueue(b *CommandBatch) error {
	if err := b.transition(StateBaked); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.poisoned != nil {
		return newErr(DeviceError, "Engine.Enqueue", string(b.ID.String()), e.poisoned)
	}
	e.pending[b.Queue] = append(e.pending[b.Queue], b)
	return nil
}

// Flush runs up to maxIterations passes: each pass promotes every
// pending batch whose dependencies are all at least Ready and issues
// one vkQueueSubmit per queue covering every batch promoted this pass.
// Cross-queue semaphores are not created here: DependsOn attaches
// them to both batches when the edge is declared. It stops early once a pass makes no progress. This is
// the engine's only entry point into submission: flushing never
// happens implicitly on any other call.
func (e *Engine) Flush(maxIterations int) error {
	for iter := 0; iter < maxIterations; iter++ {
		progressed, err := e.flushOnce()
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
	return nil
}

func (e *Engine) flushOnce() (bool, error) {
	e.mu.Lock()
	if e.poisoned != nil {
		e.mu.Unlock()
		return false, newErr(DeviceError, "Engine.Flush", "", e.poisoned)
	}
	progressed := false
	for kind, list := range e.pending {
		var ready []*CommandBatch
		var stillPending []*CommandBatch
		for _, b := range list {
			if b.readyToPromote() {
				ready = append(ready, b)
			} else {
				stillPending = append(stillPending, b)
			}
		}
		e.pending[kind] = stillPending
		if len(ready) == 0 {
			continue
		}
		progressed = true
		for _, b := range ready {
			if err := b.transition(StateReady); err != nil {
				e.mu.Unlock()
				return false, err
			}
		}
		e.mu.Unlock()
		if err := e.submitReady(kind, ready); err != nil {
			e.mu.Lock()
			e.poisoned = err
			e.mu.Unlock()
			return false, err
		}
		e.mu.Lock()
	}
	e.mu.Unlock()
	return progressed, nil
}

// submitReady issues one vkQueueSubmit call covering every batch in
// ready, passing each batch's wait and signal semaphores (including
// the cross-queue ones DependsOn attached) and appending a trailing
// command buffer for any queued release barriers.
func (e *Engine) submitReady(kind QueueKind, ready []*CommandBatch) error {
	qb := e.dv.queues[kind]
	submits := make([]vk.SubmitInfo, 0, len(ready))

	// vkQueueSubmit accepts exactly one fence for the whole call, so
	// every batch promoted together shares it; the fence signals only
	// once every VkSubmitInfo in the call has finished executing, which
	// is exactly when every one of these batches is done.
	fence, err := e.fences.Acquire()
	if err != nil {
		return err
	}

	for _, b := range ready {
		cmdBufs := append([]vk.CommandBuffer{}, b.cmdBuffers...)
		if len(b.releaseBarriers) > 0 {
			cb, err := e.recordReleaseBarriers(b)
			if err != nil {
				return err
			}
			cmdBufs = append(cmdBufs, cb)
		}

		b.fence = fence

		info := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			CommandBufferCount:   uint32(len(cmdBufs)),
			PCommandBuffers:      cmdBufs,
			WaitSemaphoreCount:   uint32(len(b.waitSems)),
			PWaitSemaphores:      b.waitSems,
			SignalSemaphoreCount: uint32(len(b.signalSems)),
			PSignalSemaphores:    b.signalSems,
		}
		if len(b.waitStages) > 0 {
			stages := make([]vk.PipelineStageFlags, len(b.waitStages))
			for i, s := range b.waitStages {
				stages[i] = vk.PipelineStageFlags(s)
			}
			info.PWaitDstStageMask = stages
		}
		submits = append(submits, info)
	}

	qb.mu.Lock()
	ret := vk.QueueSubmit(qb.queue, uint32(len(submits)), submits, fence)
	qb.mu.Unlock()
	if ret != vk.Success {
		logx.Error("vkQueueSubmit failed on %s queue: %d", qb.name, ret)
		return newErr(DeviceError, "Engine.submitReady", qb.name, vkErr("vkQueueSubmit", ret))
	}

	for _, b := range ready {
		if err := b.transition(StateSubmitted); err != nil {
			return err
		}
		e.mu.Lock()
		e.submitted = append(e.submitted, b)
		e.mu.Unlock()
	}
	return nil
}

func (e *Engine) recordReleaseBarriers(b *CommandBatch) (vk.CommandBuffer, error) {
	pool, err := e.poolFor(e.dv.QueueFamily(b.Queue))
	if err != nil {
		return nil, err
	}
	cb, err := pool.Acquire(false)
	if err != nil {
		return nil, err
	}
	if ret := vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}); ret != vk.Success {
		return nil, newErr(DeviceError, "recordReleaseBarriers", "", vkErr("vkBeginCommandBuffer", ret))
	}
	for _, spec := range b.releaseBarriers {
		emitBarrier(cb, spec)
	}
	if ret := vk.EndCommandBuffer(cb); ret != vk.Success {
		return nil, newErr(DeviceError, "recordReleaseBarriers", "", vkErr("vkEndCommandBuffer", ret))
	}
	return cb, nil
}

// PollCompletions checks every submitted batch's fence and moves
// signalled ones to Complete, returning its fence and command buffers
// to their caches and running its completion hooks.
func (e *Engine) PollCompletions() error {
	e.mu.Lock()
	remaining := e.submitted[:0]
	toComplete := []*CommandBatch{}
	for _, b := range e.submitted {
		ret := vk.GetFenceStatus(e.dv.Device, b.fence)
		if ret == vk.Success {
			toComplete = append(toComplete, b)
		} else {
			remaining = append(remaining, b)
		}
	}
	e.submitted = remaining
	e.mu.Unlock()

	releasedFences := make(map[vk.Fence]bool)
	for _, b := range toComplete {
		if err := b.complete(); err != nil {
			return err
		}
		// Batches promoted in the same submitReady call share one
		// fence; release it back to the cache only once.
		if !releasedFences[b.fence] {
			e.fences.Release(b.fence)
			releasedFences[b.fence] = true
		}
		pool, err := e.poolFor(e.dv.QueueFamily(b.Queue))
		if err == nil {
			for _, cb := range b.cmdBuffers {
				pool.Release(cb)
			}
		}
	}
	return nil
}

// Wait blocks up to timeoutNs for every fence behind batches to
// signal, polling completions as it goes, and reports whether they all
// signalled within the timeout. A batch that times out is left
// Submitted rather than Complete, with no other side effect; batches
// sharing a fence with one that did signal are completed normally by
// the PollCompletions pass this always runs before returning.
func (e *Engine) Wait(batches []*CommandBatch, timeoutNs uint64) (bool, error) {
	seen := make(map[vk.Fence]bool, len(batches))
	allSignalled := true
	for _, b := range batches {
		if b.fence == nil {
			return false, newErr(ContractError, "Engine.Wait", string(b.ID.String()), errNotSubmitted)
		}
		if seen[b.fence] {
			continue
		}
		seen[b.fence] = true
		signalled, err := e.fences.Wait(b.fence, timeoutNs)
		if err != nil {
			return false, err
		}
		if !signalled {
			allSignalled = false
		}
	}
	if err := e.PollCompletions(); err != nil {
		return false, err
	}
	return allSignalled, nil
}

// WaitIdle blocks until the whole device is idle, one of the core's
// four blocking suspension points.
func (e *Engine) WaitIdle() error {
	if err := e.dv.WaitIdle(); err != nil {
		return err
	}
	return e.PollCompletions()
}

// Destroy waits the device idle, then tears down every pool and the
// fence cache.
func (e *Engine) Destroy() {
	e.dv.WaitIdle()
	e.fences.Destroy()
	e.poolsMu.Lock()
	for _, p := range e.pools {
		p.Destroy()
	}
	e.poolsMu.Unlock()
	e.mu.Lock()
	for _, s := range e.freeSems {
		vk.DestroySemaphore(e.dv.Device, s, nil)
	}
	e.freeSems = nil
	e.mu.Unlock()
}

const errNotSubmitted errSentinel = "batch has not been submitted"
