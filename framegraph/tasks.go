// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// TaskKind tags the payload carried by a TaskNode.
type TaskKind int32 //enums:enum

const (
	SubmitRenderPass TaskKind = iota
	DrawVertices
	DrawIndexed
	DrawVerticesIndirect
	DrawIndexedIndirect
	DrawMeshes
	DrawMeshesIndirect
	CustomDraw
	DispatchCompute
	DispatchComputeIndirect
	CopyBuffer
	CopyImage
	CopyBufferToImage
	CopyImageToBuffer
	BlitImage
	GenerateMipmaps
	ResolveImage
	FillBuffer
	ClearColorImage
	ClearDepthStencilImage
	UpdateBuffer
	Present
	UpdateRayTracingShaderTable
	BuildRayTracingGeometry
	BuildRayTracingScene
	TraceRays
	CustomTask
)

// DrawParams carries the common per-draw state: pipeline, descriptor
// bindings, vertex/index buffers, push constants, and dynamic
// viewport/scissor state. The recorder binds the index buffer but not
// VertexBuffers: no VertexID is mapped to a Vulkan binding slot and
// no vertex buffer is bound.
type DrawParams struct {
	Pipeline       RawID
	DescriptorSets []RawID
	VertexBuffers  map[VertexID]RawID
	IndexBuffer    RawID
	IndexType      vk.IndexType
	PushConstants  []byte
	Viewports      []vk.Viewport
	Scissors       []vk.Rect2D

	VertexCount, InstanceCount   uint32
	FirstVertex, FirstInstance   uint32
	IndexCount                   uint32
	FirstIndex                   int32
	VertexOffset                 int32
	IndirectBuffer                RawID // for *Indirect variants
	IndirectOffset                uint64
	IndirectCount                 uint32
	IndirectCountBuffer            RawID
	MeshGroupCountX, MeshGroupCountY, MeshGroupCountZ uint32
}

// ComputeParams carries dispatch state for DispatchCompute[Indirect].
type ComputeParams struct {
	Pipeline       RawID
	DescriptorSets []RawID
	PushConstants  []byte
	GroupCountX, GroupCountY, GroupCountZ uint32
	IndirectBuffer RawID
	IndirectOffset uint64
}

// CopyParams carries the common parameters for the copy/blit/clear
// task family.
type CopyParams struct {
	SrcBuffer, DstBuffer RawID
	SrcImage, DstImage   RawID
	SrcOffset, DstOffset uint64
	Size                 uint64
	Regions              []vk.BufferImageCopy
	ImageRegions         []vk.ImageCopy
	BlitRegions          []vk.ImageBlit
	ResolveRegions       []vk.ImageResolve
	Filter               vk.Filter
	ClearColor           vk.ClearColorValue
	ClearDepthStencil    vk.ClearDepthStencilValue
	FillValue            uint32
	Data                 []byte // UpdateBuffer inline payload
}

// PresentParams carries a Present task's parameters.
type PresentParams struct {
	SourceImage RawID
	Swapchain   RawID
	ImageIndex  uint32
}

// RayTracingParams carries the ray-tracing task family's parameters.
// Ray-tracing task kinds are accepted by the graph and tracker exactly
// like any other task. The resource manager has no acceleration-
// structure or shader-table kind; the underlying VK_KHR_ray_tracing
// objects are created by the caller, and these task kinds record
// commands only through the task's Custom function.
type RayTracingParams struct {
	AccelerationStructure RawID
	ShaderBindingTable    RawID
	GeometryBuffers       []RawID
	InstanceBuffer        RawID
	Width, Height, Depth  uint32
}

// CustomFunc is the escape hatch task kinds (CustomDraw, CustomTask)
// invoke directly with the recorder's live command buffer, after the
// tracker has realized whatever barriers the task declared via
// BufferAccesses/ImageAccesses.
type CustomFunc func(cmd vk.CommandBuffer)

// TaskNode is one node of a recorder's per-command-buffer DAG.
type TaskNode struct {
	Kind TaskKind
	Name string

	// DependsOn lists the indices (within the same recorder) of tasks
	// that must be recorded before this one, beyond whatever implicit
	// edges shared-resource accesses introduce.
	DependsOn []int

	BufferAccesses []BufferAccess
	ImageAccesses  []ImageAccess

	Draw    *DrawParams
	Compute *ComputeParams
	Copy    *CopyParams
	Present *PresentParams
	RayTrace *RayTracingParams
	Custom  CustomFunc

	// RenderPass is set on SubmitRenderPass nodes: the attachments and
	// draw sub-tasks that make up the logical render pass.
	RenderPass *LogicalRenderPass

	index int // assigned by the graph at Add time
}
