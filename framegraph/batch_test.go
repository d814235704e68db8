// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import "testing"

func TestBatchStateTransitionOnlyAdvancesByOne(t *testing.T) {
	if err := StateInitial.Transition(StateRecording); err != nil {
		t.Fatalf("Initial -> Recording: %v", err)
	}
	if err := StateInitial.Transition(StateBaked); err == nil {
		t.Fatal("Initial -> Baked (skipping Recording) should be illegal")
	}
	if err := StateRecording.Transition(StateInitial); err == nil {
		t.Fatal("Recording -> Initial (backward) should be illegal")
	}
	if err := StateComplete.Transition(StateComplete); err == nil {
		t.Fatal("Complete -> Complete should be illegal (no self-loop)")
	}
}

func newTestBatch() *CommandBatch {
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	return newCommandBatch(NewCommandBatchID("test"), GraphicsQueue, rm, nil, nil)
}

func TestCommandBatchTransitionSequence(t *testing.T) {
	b := newTestBatch()
	if b.State() != StateInitial {
		t.Fatalf("initial state = %v, want StateInitial", b.State())
	}
	for _, next := range []BatchState{StateRecording, StateBaked, StateReady, StateSubmitted, StateComplete} {
		if err := b.transition(next); err != nil {
			t.Fatalf("transition(%v): %v", next, err)
		}
	}
	if b.State() != StateComplete {
		t.Fatalf("final state = %v, want StateComplete", b.State())
	}
}

func TestCommandBatchDependsOnSameQueueNoSemaphore(t *testing.T) {
	dep := newTestBatch()
	b := newTestBatch()
	// b.engine is nil, so DependsOn must not try to allocate a
	// semaphore even across queues -- exercised implicitly here since
	// same-queue deps never go down that path at all.
	if err := b.DependsOn(dep); err != nil {
		t.Fatalf("DependsOn: %v", err)
	}
	if len(b.waitSems) != 0 {
		t.Fatalf("same-queue dependency should not allocate a semaphore, got %d", len(b.waitSems))
	}
}

func TestCommandBatchReadyToPromotePrunesCompleted(t *testing.T) {
	dep := newTestBatch()
	b := newTestBatch()
	b.dependsOn = append(b.dependsOn, dep)

	if b.readyToPromote() {
		t.Fatal("should not be ready while dep is still Initial")
	}

	dep.transition(StateRecording)
	dep.transition(StateBaked)
	dep.transition(StateReady)
	if !b.readyToPromote() {
		t.Fatal("should be ready once dep reaches Ready")
	}

	dep.transition(StateSubmitted)
	dep.transition(StateComplete)
	if !b.readyToPromote() {
		t.Fatal("should still be ready once dep reaches Complete")
	}
	if len(b.dependsOn) != 0 {
		t.Fatalf("completed dependency should have been pruned, got %d remaining", len(b.dependsOn))
	}
}

func TestCommandBatchOnCompleteFiresExactlyOnce(t *testing.T) {
	b := newTestBatch()
	calls := 0
	b.OnComplete(func() { calls++ })

	for _, next := range []BatchState{StateRecording, StateBaked, StateReady, StateSubmitted} {
		if err := b.transition(next); err != nil {
			t.Fatalf("transition(%v): %v", next, err)
		}
	}
	if err := b.complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if calls != 1 {
		t.Fatalf("OnComplete hook fired %d times, want 1", calls)
	}
	if b.onComplete != nil {
		t.Fatal("hooks slice should be cleared after firing")
	}
}

func TestCommandBatchAddResourceReleaseDispatchesByKind(t *testing.T) {
	b := newTestBatch()
	// An unknown/stale id is enough to exercise the dispatch wiring
	// through releaseByKind without needing a live Vulkan buffer.
	b.AddResourceRelease(KindBuffer, InvalidID)

	for _, next := range []BatchState{StateRecording, StateBaked, StateReady, StateSubmitted} {
		if err := b.transition(next); err != nil {
			t.Fatalf("transition(%v): %v", next, err)
		}
	}
	if err := b.complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// complete() having returned without panicking confirms
	// releaseByKind routed to ReleaseBuffer and hit the stale-handle
	// path rather than, say, indexing out of range on the wrong table.
}

func TestCommandBatchAddReleaseBarrierRefusedAfterSubmit(t *testing.T) {
	b := newTestBatch()
	for _, next := range []BatchState{StateRecording, StateBaked, StateReady, StateSubmitted} {
		b.transition(next)
	}
	if b.addReleaseBarrier(barrierSpec{}) {
		t.Fatal("addReleaseBarrier should refuse once the batch is Submitted")
	}
}
