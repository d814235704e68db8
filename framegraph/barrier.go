// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// accessState is one side of a barrier decision: the pipeline stages
// and access mask a resource was (or will be) touched with, its image
// layout (zero/ignored for buffers), the queue family that touched it,
// and whether the touch was a write.
type accessState struct {
	stages      vk.PipelineStageFlagBits
	access      vk.AccessFlagBits
	layout      vk.ImageLayout
	queueFamily uint32
	isWrite     bool
}

// needsBarrier implements the decision rule: a barrier is required iff
// the layout differs, the queue family differs, or either side is a
// write. Two reads sharing layout and queue family never need one.
func needsBarrier(prev, next accessState) bool {
	if prev.layout != next.layout {
		return true
	}
	if prev.queueFamily != next.queueFamily {
		return true
	}
	return prev.isWrite || next.isWrite
}

// mergeReads folds next into prev when both are reads in the same
// layout and queue family: the running read scope accumulates stages
// and access instead of resetting.
func mergeReads(prev, next accessState) accessState {
	prev.stages |= next.stages
	prev.access |= next.access
	return prev
}

type barrierSpec struct {
	isImage      bool
	buffer       vk.Buffer
	bufferOffset uint64
	bufferSize   uint64
	image        vk.Image
	aspect       vk.ImageAspectFlagBits
	baseMip      uint32
	mipCount     uint32
	baseLayer    uint32
	layerCount   uint32
	prev         accessState
	next         accessState
}

// emitBarrier issues a single vkCmdPipelineBarrier for spec on cmd.
func emitBarrier(cmd vk.CommandBuffer, spec barrierSpec) {
	srcStage := spec.prev.stages
	dstStage := spec.next.stages
	if srcStage == 0 {
		srcStage = vk.PipelineStageTopOfPipeBit
	}
	if dstStage == 0 {
		dstStage = vk.PipelineStageBottomOfPipeBit
	}

	if spec.isImage {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(spec.prev.access),
			DstAccessMask:       vk.AccessFlags(spec.next.access),
			OldLayout:           spec.prev.layout,
			NewLayout:           spec.next.layout,
			SrcQueueFamilyIndex: familyOrIgnored(spec.prev.queueFamily, spec.next.queueFamily, spec.prev.queueFamily),
			DstQueueFamilyIndex: familyOrIgnored(spec.prev.queueFamily, spec.next.queueFamily, spec.next.queueFamily),
			Image:               spec.image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(spec.aspect),
				BaseMipLevel:   spec.baseMip,
				LevelCount:     spec.mipCount,
				BaseArrayLayer: spec.baseLayer,
				LayerCount:     spec.layerCount,
			},
		}
		vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0,
			0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
		return
	}

	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(spec.prev.access),
		DstAccessMask:       vk.AccessFlags(spec.next.access),
		SrcQueueFamilyIndex: familyOrIgnored(spec.prev.queueFamily, spec.next.queueFamily, spec.prev.queueFamily),
		DstQueueFamilyIndex: familyOrIgnored(spec.prev.queueFamily, spec.next.queueFamily, spec.next.queueFamily),
		Buffer:              spec.buffer,
		Offset:              vk.DeviceSize(spec.bufferOffset),
		Size:                vk.DeviceSize(spec.bufferSize),
	}
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0,
		0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

// familyOrIgnored returns vk.QueueFamilyIgnored unless the two families
// genuinely differ, in which case it returns want (either side of the
// ownership-transfer pair).
func familyOrIgnored(a, b, want uint32) uint32 {
	if a == b {
		return vk.QueueFamilyIgnored
	}
	return want
}
