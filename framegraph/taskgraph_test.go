// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
)

func writeTask(id RawID) *TaskNode {
	return &TaskNode{BufferAccesses: []BufferAccess{{Buffer: id, IsWrite: true}}}
}

func readTask(id RawID) *TaskNode {
	return &TaskNode{BufferAccesses: []BufferAccess{{Buffer: id}}}
}

func TestTaskGraphImplicitWriteThenRead(t *testing.T) {
	g := newTaskGraph()
	buf := newResourceID(1, 1)

	w := g.Add(writeTask(buf))
	r := g.Add(readTask(buf))

	if got := g.nodes[r].DependsOn; len(got) != 1 || got[0] != w {
		t.Fatalf("read task DependsOn = %v, want [%d]", got, w)
	}
}

func TestTaskGraphReadersBlockNextWriter(t *testing.T) {
	g := newTaskGraph()
	buf := newResourceID(1, 1)

	w1 := g.Add(writeTask(buf))
	r1 := g.Add(readTask(buf))
	r2 := g.Add(readTask(buf))
	w2 := g.Add(writeTask(buf))

	deps := g.nodes[w2].DependsOn
	has := func(idx int) bool {
		for _, d := range deps {
			if d == idx {
				return true
			}
		}
		return false
	}
	if !has(r1) || !has(r2) {
		t.Fatalf("second writer %d must depend on both readers %d,%d; got %v", w2, r1, r2, deps)
	}
	if has(w1) {
		t.Fatalf("second writer should not re-depend on the first writer once readers exist; got %v", deps)
	}
}

func TestTaskGraphTopoOrderRespectsDeclarationOrderAmongIndependents(t *testing.T) {
	g := newTaskGraph()
	a := newResourceID(1, 1)
	b := newResourceID(2, 1)

	g.Add(writeTask(a)) // 0
	g.Add(writeTask(b)) // 1, independent of 0

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder: %v", err)
	}
	if order[0] != 0 || order[1] != 1 {
		t.Fatalf("order = %v, want [0 1] (declaration order tie-break)", order)
	}
}

func TestTaskGraphTopoOrderDetectsExplicitCycle(t *testing.T) {
	g := newTaskGraph()
	t0 := &TaskNode{}
	t1 := &TaskNode{}
	i0 := g.Add(t0)
	i1 := g.Add(t1)

	g.nodes[i0].DependsOn = append(g.nodes[i0].DependsOn, i1)
	g.nodes[i1].DependsOn = append(g.nodes[i1].DependsOn, i0)

	_, err := g.TopoOrder()
	if err == nil {
		t.Fatal("TopoOrder: expected a cycle error, got nil")
	}
	if !errors.Is(err, errCyclicGraph) {
		t.Fatalf("TopoOrder error = %v, want wrapping errCyclicGraph", err)
	}
}

func TestTaskGraphExplicitDependsOnSurvivesTopoOrder(t *testing.T) {
	g := newTaskGraph()
	first := g.Add(&TaskNode{})
	second := &TaskNode{DependsOn: []int{first}}
	secondIdx := g.Add(second)

	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder: %v", err)
	}
	posOf := func(idx int) int {
		for i, v := range order {
			if v == idx {
				return i
			}
		}
		return -1
	}
	if posOf(first) >= posOf(secondIdx) {
		t.Fatalf("order %v places explicit dependency %d after dependent %d", order, first, secondIdx)
	}
}

// imageAccessOf is a small helper exercising the ImageAccesses path
// through Add, mirroring the buffer-access tests above but for
// images, since the two touch separate lastWriter/lastReader maps.
func imageAccessOf(id RawID, write bool) *TaskNode {
	return &TaskNode{ImageAccesses: []ImageAccess{{Image: id, IsWrite: write, Layout: vk.ImageLayoutUndefined}}}
}

func TestTaskGraphImageAccessesTrackedSeparatelyFromBuffers(t *testing.T) {
	g := newTaskGraph()
	img := newResourceID(1, 1)
	buf := newResourceID(1, 1) // same raw bits, different access kind -- must not collide

	w := g.Add(imageAccessOf(img, true))
	g.Add(writeTask(buf))
	r := g.Add(imageAccessOf(img, false))

	deps := g.nodes[r].DependsOn
	if len(deps) != 1 || deps[0] != w {
		t.Fatalf("image reader DependsOn = %v, want [%d] (must not pick up the buffer task)", deps, w)
	}
}
