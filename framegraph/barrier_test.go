// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestNeedsBarrierTwoReadsSameLayoutAndQueueNeverBarrier(t *testing.T) {
	prev := accessState{stages: vk.PipelineStageVertexShaderBit, access: vk.AccessShaderReadBit, layout: vk.ImageLayoutShaderReadOnlyOptimal, queueFamily: 0}
	next := accessState{stages: vk.PipelineStageFragmentShaderBit, access: vk.AccessShaderReadBit, layout: vk.ImageLayoutShaderReadOnlyOptimal, queueFamily: 0}
	if needsBarrier(prev, next) {
		t.Fatal("two reads in the same layout and queue family should never need a barrier")
	}
}

func TestNeedsBarrierLayoutChangeAlwaysBarriers(t *testing.T) {
	prev := accessState{layout: vk.ImageLayoutUndefined}
	next := accessState{layout: vk.ImageLayoutTransferDstOptimal}
	if !needsBarrier(prev, next) {
		t.Fatal("a layout transition must always require a barrier, even between two reads")
	}
}

func TestNeedsBarrierQueueFamilyChangeAlwaysBarriers(t *testing.T) {
	prev := accessState{queueFamily: 0}
	next := accessState{queueFamily: 1}
	if !needsBarrier(prev, next) {
		t.Fatal("crossing queue families must always require a barrier")
	}
}

func TestNeedsBarrierEitherSideWriteAlwaysBarriers(t *testing.T) {
	write := accessState{isWrite: true}
	read := accessState{isWrite: false}
	if !needsBarrier(read, write) {
		t.Fatal("read-then-write must barrier")
	}
	if !needsBarrier(write, read) {
		t.Fatal("write-then-read must barrier")
	}
	if !needsBarrier(write, write) {
		t.Fatal("write-then-write must barrier")
	}
}

func TestMergeReadsUnionsStagesAndAccess(t *testing.T) {
	prev := accessState{stages: vk.PipelineStageVertexShaderBit, access: vk.AccessShaderReadBit, layout: vk.ImageLayoutShaderReadOnlyOptimal}
	next := accessState{stages: vk.PipelineStageFragmentShaderBit, access: vk.AccessUniformReadBit, layout: vk.ImageLayoutShaderReadOnlyOptimal}
	merged := mergeReads(prev, next)

	wantStages := vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit
	if merged.stages != wantStages {
		t.Fatalf("stages = %v, want %v", merged.stages, wantStages)
	}
	wantAccess := vk.AccessShaderReadBit | vk.AccessUniformReadBit
	if merged.access != wantAccess {
		t.Fatalf("access = %v, want %v", merged.access, wantAccess)
	}
	if merged.layout != prev.layout {
		t.Fatalf("layout = %v, want the unchanged shared layout %v", merged.layout, prev.layout)
	}
}

func TestFamilyOrIgnoredSameFamilyIsIgnored(t *testing.T) {
	if got := familyOrIgnored(3, 3, 3); got != vk.QueueFamilyIgnored {
		t.Fatalf("familyOrIgnored(3, 3, 3) = %v, want QueueFamilyIgnored", got)
	}
}

func TestFamilyOrIgnoredDifferentFamilyReturnsWant(t *testing.T) {
	if got := familyOrIgnored(0, 2, 0); got != 0 {
		t.Fatalf("familyOrIgnored(0, 2, 0) = %v, want 0", got)
	}
	if got := familyOrIgnored(0, 2, 2); got != 2 {
		t.Fatalf("familyOrIgnored(0, 2, 2) = %v, want 2", got)
	}
}
