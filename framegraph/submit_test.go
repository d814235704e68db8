// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import "testing"

// newTestEngine builds an Engine with only the plain-Go bookkeeping
// fields initialized -- dv and rm stay nil, which is fine for the
// ownership map and pending-list paths that never dereference them.
func newTestEngine() *Engine {
	return &Engine{
		pending:   make(map[QueueKind][]*CommandBatch),
		ownership: make(map[RawID]ownerRecord),
	}
}

func TestEngineRecordTouchThenLastTouchRoundTrips(t *testing.T) {
	e := newTestEngine()
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	b := newCommandBatch(NewCommandBatchID("writer"), GraphicsQueue, rm, nil, nil)

	id := newResourceID(1, 1)
	if _, _, ok := e.lastTouch(id); ok {
		t.Fatal("lastTouch on an untouched resource should report false")
	}

	e.recordTouch(id, b, 2)
	got, family, ok := e.lastTouch(id)
	if !ok || got != b || family != 2 {
		t.Fatalf("lastTouch = %v, %d, %v; want %v, 2, true", got, family, ok, b)
	}
}

func TestEngineRecordTouchOverwritesPreviousOwner(t *testing.T) {
	e := newTestEngine()
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	first := newCommandBatch(NewCommandBatchID("first"), GraphicsQueue, rm, nil, nil)
	second := newCommandBatch(NewCommandBatchID("second"), AsyncComputeQueue, rm, nil, nil)

	id := newResourceID(1, 1)
	e.recordTouch(id, first, 0)
	e.recordTouch(id, second, 1)

	got, family, ok := e.lastTouch(id)
	if !ok || got != second || family != 1 {
		t.Fatalf("lastTouch = %v, %d, %v; want the second writer, 1, true", got, family, ok)
	}
}

func TestEngineEnqueueAppendsToItsQueueKind(t *testing.T) {
	e := newTestEngine()
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	graphics := newCommandBatch(NewCommandBatchID("g"), GraphicsQueue, rm, nil, nil)
	compute := newCommandBatch(NewCommandBatchID("c"), AsyncComputeQueue, rm, nil, nil)
	graphics.transition(StateRecording)
	compute.transition(StateRecording)

	if err := e.Enqueue(graphics); err != nil {
		t.Fatalf("Enqueue(graphics): %v", err)
	}
	if err := e.Enqueue(compute); err != nil {
		t.Fatalf("Enqueue(compute): %v", err)
	}

	if len(e.pending[GraphicsQueue]) != 1 || e.pending[GraphicsQueue][0] != graphics {
		t.Fatalf("pending[GraphicsQueue] = %v, want [graphics]", e.pending[GraphicsQueue])
	}
	if len(e.pending[AsyncComputeQueue]) != 1 || e.pending[AsyncComputeQueue][0] != compute {
		t.Fatalf("pending[AsyncComputeQueue] = %v, want [compute]", e.pending[AsyncComputeQueue])
	}
}

func TestEngineEnqueueRejectsIllegalTransition(t *testing.T) {
	e := newTestEngine()
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	b := newCommandBatch(NewCommandBatchID("b"), GraphicsQueue, rm, nil, nil)
	// Still Initial: Enqueue requires Baked, which requires passing
	// through Recording first.
	if err := e.Enqueue(b); err == nil {
		t.Fatal("Enqueue on a batch that never left Initial should fail its state transition")
	}
}

func TestEngineEnqueueFailsOncePoisoned(t *testing.T) {
	e := newTestEngine()
	e.poisoned = errCyclicGraph
	rm := &ResourceManager{buffers: &slotTable[bufferResource]{}}
	b := newCommandBatch(NewCommandBatchID("b"), GraphicsQueue, rm, nil, nil)
	b.transition(StateRecording)

	if err := e.Enqueue(b); err == nil {
		t.Fatal("Enqueue on a poisoned engine should fail")
	}
}
