// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// BatchState is one of the one-way batch states.
type BatchState int32 //enums:enum

const (
	StateInitial BatchState = iota
	StateRecording
	StateBaked
	StateReady
	StateSubmitted
	StateComplete
)

// Transition moves a batch to next if the move is legal, returning an
// error naming the illegal move otherwise. Each transition is one-way
// and only ever advances by exactly one state.
func (s BatchState) Transition(next BatchState) error {
	if next != s+1 {
		return newErr(ContractError, "BatchState.Transition", "", errIllegalTransition)
	}
	return nil
}

const errIllegalTransition errSentinel = "illegal batch state transition"

// CommandBatch is one unit of submission on one queue: its recorded
// command buffers, semaphores, fence, dependencies on other batches,
// and the hooks run when it reaches Complete. Its ID names it for
// logging and for the caller's explicit dependency graph.
type CommandBatch struct {
	ID          CommandBatchID
	Queue       QueueKind
	mu          sync.Mutex
	state       BatchState
	cmdBuffers  []vk.CommandBuffer
	waitSems    []vk.Semaphore
	waitStages  []vk.PipelineStageFlagBits
	signalSems  []vk.Semaphore
	fence       vk.Fence

	dependsOn []*CommandBatch

	releasedResources []OwnedID
	onComplete        []func()

	releaseBarriers []barrierSpec
	releaseFamily   uint32

	rm     *ResourceManager
	dv     *Device
	engine *Engine
}

func newCommandBatch(id CommandBatchID, queue QueueKind, rm *ResourceManager, dv *Device, engine *Engine) *CommandBatch {
	return &CommandBatch{ID: id, Queue: queue, state: StateInitial, rm: rm, dv: dv, engine: engine}
}

// State returns the batch's current state.
func (b *CommandBatch) State() BatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CommandBatch) transition(next BatchState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.state.Transition(next); err != nil {
		return err
	}
	b.state = next
	return nil
}

// DependsOn declares that b must not be promoted to Ready until every
// batch in deps is itself at least Ready. A dependency on a different
// queue additionally threads a cross-queue semaphore right away,
// signalled on dep and waited on by b, since by the time both are
// Ready it would be too late to attach a new signal to dep's
// already-submitted vkQueueSubmit.
func (b *CommandBatch) DependsOn(deps ...*CommandBatch) error {
	b.mu.Lock()
	b.dependsOn = append(b.dependsOn, deps...)
	b.mu.Unlock()

	for _, d := range deps {
		if d.Queue == b.Queue || b.engine == nil {
			continue
		}
		sem, err := b.engine.acquireSemaphore()
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.signalSems = append(d.signalSems, sem)
		d.mu.Unlock()

		b.mu.Lock()
		b.waitSems = append(b.waitSems, sem)
		b.waitStages = append(b.waitStages, vk.PipelineStageAllCommandsBit)
		b.mu.Unlock()

		b.OnComplete(func() { b.engine.releaseSemaphore(sem) })
	}
	return nil
}

// readyToPromote reports whether every dependency has reached at
// least Ready. Dependencies already at Complete are pruned from the
// list as a side effect, keeping future checks O(1) per remaining
// edge.
func (b *CommandBatch) readyToPromote() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.dependsOn[:0]
	allReady := true
	for _, d := range b.dependsOn {
		s := d.State()
		if s == StateComplete {
			continue // trivially satisfied; drop the edge
		}
		remaining = append(remaining, d)
		if s < StateReady {
			allReady = false
		}
	}
	b.dependsOn = remaining
	return allReady
}

// AddResourceRelease registers an owned handle to be released when
// this batch reaches Complete, implementing the reference-counted
// deferred-destruction lifecycle.
func (b *CommandBatch) AddResourceRelease(kind ResourceKind, id OwnedID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releasedResources = append(b.releasedResources, id)
	kindCopy := kind
	idCopy := id
	b.onComplete = append(b.onComplete, func() { releaseByKind(b.rm, kindCopy, idCopy) })
}

// OnComplete registers fn to run once, when this batch reaches
// Complete -- the same hook the staging allocator's transfer-complete
// callbacks and the resource manager's deferred releases both use.
func (b *CommandBatch) OnComplete(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onComplete = append(b.onComplete, fn)
}

// addReleaseBarrier appends a queue-family-ownership release barrier
// to this batch. The engine records all of a batch's release barriers
// at submission time into a small trailing primary command buffer that
// goes into the same vkQueueSubmit, after the batch's own buffers.
// Returns false if the batch has already been submitted, signalling
// the tracker to fall back to a conservative same-family barrier.
func (b *CommandBatch) addReleaseBarrier(spec barrierSpec) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= StateSubmitted {
		return false
	}
	b.releaseBarriers = append(b.releaseBarriers, spec)
	return true
}

// complete runs every registered completion hook exactly once and
// moves the batch to Complete. Called by the submission engine after
// observing the batch's fence signalled.
func (b *CommandBatch) complete() error {
	if err := b.transition(StateComplete); err != nil {
		return err
	}
	b.mu.Lock()
	hooks := b.onComplete
	b.onComplete = nil
	b.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// ResourceKind tags which resource-manager slot table an OwnedID
// belongs to, so a single CommandBatch.AddResourceRelease call can
// defer-release any kind.
type ResourceKind int32 //enums:enum

const (
	KindBuffer ResourceKind = iota
	KindImage
	KindSampler
	KindDescriptorSetLayout
	KindPipelineResourceSet
	KindPipeline
	KindSwapchain
)

func releaseByKind(rm *ResourceManager, kind ResourceKind, id OwnedID) {
	switch kind {
	case KindBuffer:
		rm.ReleaseBuffer(id)
	case KindImage:
		rm.ReleaseImage(id)
	case KindSampler:
		rm.ReleaseSampler(id)
	case KindDescriptorSetLayout:
		rm.ReleaseDescriptorSetLayout(id)
	case KindPipelineResourceSet:
		rm.ReleasePipelineResourceSet(id)
	case KindPipeline:
		rm.ReleasePipeline(id)
	case KindSwapchain:
		rm.ReleaseSwapchain(id)
	}
}
