// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// Recorder is a command-buffer recorder bound to one logical queue: it
// owns a TaskGraph, a Tracker, and the Vulkan command buffer the
// tracker emits barriers into and the graph's traversal records
// commands into. A Recorder is single-use: NewRecorder through
// Execute, then discarded.
type Recorder struct {
	engine  *Engine
	rm      *ResourceManager
	dv      *Device
	queue   QueueKind
	pool    *cmdBufCache
	cmd     vk.CommandBuffer
	batch   *CommandBatch
	graph   *TaskGraph
	tracker *Tracker
}

// NewRecorder opens a command buffer bound to queue and moves its
// batch to Recording.
func (e *Engine) NewRecorder(queue QueueKind, id CommandBatchID) (*Recorder, error) {
	batch := e.NewBatch(id, queue)
	if err := batch.transition(StateRecording); err != nil {
		return nil, err
	}
	pool, err := e.poolFor(e.dv.QueueFamily(queue))
	if err != nil {
		return nil, err
	}
	cmd, err := pool.Acquire(false)
	if err != nil {
		return nil, err
	}
	if ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}); ret != vk.Success {
		return nil, newErr(DeviceError, "NewRecorder", string(id.String()), vkErr("vkBeginCommandBuffer", ret))
	}
	r := &Recorder{
		engine: e,
		rm:     e.rm,
		dv:     e.dv,
		queue:  queue,
		pool:   pool,
		cmd:    cmd,
		batch:  batch,
		graph:  newTaskGraph(),
	}
	r.tracker = newTracker(e.rm, e.dv.QueueFamily(queue), batch, e)
	return r, nil
}

// Batch returns the recorder's underlying batch, for declaring
// depends_on edges before Execute.
func (r *Recorder) Batch() *CommandBatch { return r.batch }

// AddTask declares a task in this recorder's graph and returns its
// index, usable as a DependsOn target for later tasks.
func (r *Recorder) AddTask(t *TaskNode) int {
	return r.graph.Add(t)
}

// Execute traverses the graph in topological order, asking the
// tracker to realise barriers for each task's declared accesses and
// then recording the task's Vulkan commands, ends the command buffer,
// and enqueues the batch onto its queue's pending list.
func (r *Recorder) Execute() error {
	order, err := r.graph.TopoOrder()
	if err != nil {
		return err
	}
	for i := 0; i < len(order); {
		t := r.graph.nodes[order[i]]
		if t.Kind == SubmitRenderPass && t.RenderPass != nil {
			// Peek ahead over the contiguous run of render-pass nodes
			// without declaring them yet: mergePasses decides the
			// fusion groups from the passes alone, then each group's
			// barriers are declared immediately before it is recorded,
			// preserving the original per-group interleaving (declaring
			// every group's barriers up front, before any of their GPU
			// work is actually recorded, could violate the hazard
			// ordering a later group's access depends on).
			nodes := []*TaskNode{t}
			passes := []*LogicalRenderPass{t.RenderPass}
			j := i + 1
			for j < len(order) {
				nt := r.graph.nodes[order[j]]
				if nt.Kind != SubmitRenderPass || nt.RenderPass == nil {
					break
				}
				nodes = append(nodes, nt)
				passes = append(passes, nt.RenderPass)
				j++
			}
			groups := mergePasses(passes)
			node := 0
			for _, g := range groups {
				groupNodes := nodes[node : node+len(g)]
				node += len(g)
				for _, gn := range groupNodes {
					if err := r.declare(gn); err != nil {
						return err
					}
				}
				if err := r.recordRenderPassGroup(groupNodes); err != nil {
					return err
				}
			}
			i = j
			continue
		}
		if err := r.declare(t); err != nil {
			return err
		}
		if err := r.recordTask(t); err != nil {
			return err
		}
		i++
	}
	if ret := vk.EndCommandBuffer(r.cmd); ret != vk.Success {
		return newErr(DeviceError, "Recorder.Execute", "", vkErr("vkEndCommandBuffer", ret))
	}
	r.batch.cmdBuffers = append(r.batch.cmdBuffers, r.cmd)
	return r.engine.Enqueue(r.batch)
}

// declare validates t, realises barriers for its declared accesses
// ahead of whatever commands t (or, for a render pass, its nested
// draws) issues, and acquires this batch's own reference on every
// resource t touches so a release by the resource's original owner
// while this batch is still in flight defers destruction instead of
// recycling the slot out from under it.
func (r *Recorder) declare(t *TaskNode) error {
	if err := r.validateTask(t); err != nil {
		return err
	}
	for _, a := range t.BufferAccesses {
		if err := r.tracker.DeclareBuffer(r.cmd, a); err != nil {
			return err
		}
		if r.rm.AcquireBuffer(a.Buffer) {
			r.batch.AddResourceRelease(KindBuffer, a.Buffer)
		}
	}
	for _, a := range t.ImageAccesses {
		if err := r.tracker.DeclareImage(r.cmd, a); err != nil {
			return err
		}
		if r.rm.AcquireImage(a.Image) {
			r.batch.AddResourceRelease(KindImage, a.Image)
		}
	}
	return nil
}

// validateTask enforces the task-graph builder's precondition checks
// before any barrier is realised or Vulkan command recorded: usage-flag
// requirements on copy/draw/present resources and format constraints
// the tracker's barrier logic does not itself check.
func (r *Recorder) validateTask(t *TaskNode) error {
	switch t.Kind {
	case SubmitRenderPass:
		if t.RenderPass != nil {
			return r.validateRenderPass(t.RenderPass)
		}
	case CopyBuffer:
		p := t.Copy
		if err := r.requireBufferUsage(p.SrcBuffer, vk.BufferUsageTransferSrcBit, "CopyBuffer", "src"); err != nil {
			return err
		}
		return r.requireBufferUsage(p.DstBuffer, vk.BufferUsageTransferDstBit, "CopyBuffer", "dst")
	case CopyImage:
		p := t.Copy
		if err := r.requireImageUsage(p.SrcImage, vk.ImageUsageTransferSrcBit, "CopyImage", "src"); err != nil {
			return err
		}
		return r.requireImageUsage(p.DstImage, vk.ImageUsageTransferDstBit, "CopyImage", "dst")
	case CopyBufferToImage:
		p := t.Copy
		if err := r.requireBufferUsage(p.SrcBuffer, vk.BufferUsageTransferSrcBit, "CopyBufferToImage", "src"); err != nil {
			return err
		}
		return r.requireImageUsage(p.DstImage, vk.ImageUsageTransferDstBit, "CopyBufferToImage", "dst")
	case CopyImageToBuffer:
		p := t.Copy
		if err := r.requireImageUsage(p.SrcImage, vk.ImageUsageTransferSrcBit, "CopyImageToBuffer", "src"); err != nil {
			return err
		}
		return r.requireBufferUsage(p.DstBuffer, vk.BufferUsageTransferDstBit, "CopyImageToBuffer", "dst")
	case ResolveImage:
		p := t.Copy
		if err := r.requireImageUsage(p.SrcImage, vk.ImageUsageTransferSrcBit, "ResolveImage", "src"); err != nil {
			return err
		}
		return r.requireImageUsage(p.DstImage, vk.ImageUsageTransferDstBit, "ResolveImage", "dst")
	case FillBuffer, UpdateBuffer:
		p := t.Copy
		return r.requireBufferUsage(p.DstBuffer, vk.BufferUsageTransferDstBit, t.Name, "dst")
	case BlitImage:
		p := t.Copy
		if err := r.requireImageUsage(p.SrcImage, vk.ImageUsageTransferSrcBit, "BlitImage", "src"); err != nil {
			return err
		}
		if err := r.requireImageUsage(p.DstImage, vk.ImageUsageTransferDstBit, "BlitImage", "dst"); err != nil {
			return err
		}
		if (r.isDepthStencilImage(p.SrcImage) || r.isDepthStencilImage(p.DstImage)) && p.Filter != vk.FilterNearest {
			return newErr(ConfigError, "BlitImage", "", errBlitFilterMustBeNearest)
		}
	case DrawIndexed, DrawIndexedIndirect:
		d := t.Draw
		if err := r.requireBufferUsage(d.IndexBuffer, vk.BufferUsageIndexBufferBit, "DrawIndexed", "index"); err != nil {
			return err
		}
		if t.Kind == DrawIndexedIndirect {
			return r.requireBufferUsage(d.IndirectBuffer, vk.BufferUsageIndirectBufferBit, "DrawIndexedIndirect", "indirect")
		}
	case DrawVerticesIndirect, DrawMeshesIndirect:
		return r.requireBufferUsage(t.Draw.IndirectBuffer, vk.BufferUsageIndirectBufferBit, t.Name, "indirect")
	case DispatchComputeIndirect:
		return r.requireBufferUsage(t.Compute.IndirectBuffer, vk.BufferUsageIndirectBufferBit, "DispatchComputeIndirect", "indirect")
	case Present:
		return r.validatePresent(t.Present)
	}
	return nil
}

func (r *Recorder) requireBufferUsage(id RawID, want vk.BufferUsageFlagBits, op, role string) error {
	desc, ok := r.rm.BufferDesc(id)
	if !ok {
		return newErr(ContractError, op, role, errStaleHandle)
	}
	if desc.Usage&want == 0 {
		return newErr(ConfigError, op, role, errMissingBufferUsage)
	}
	return nil
}

func (r *Recorder) requireImageUsage(id RawID, want vk.ImageUsageFlagBits, op, role string) error {
	desc, ok := r.rm.ImageDesc(id)
	if !ok {
		return newErr(ContractError, op, role, errStaleHandle)
	}
	if desc.Usage&want == 0 {
		return newErr(ConfigError, op, role, errMissingImageUsage)
	}
	return nil
}

func (r *Recorder) isDepthStencilImage(id RawID) bool {
	desc, ok := r.rm.ImageDesc(id)
	if !ok {
		return false
	}
	return desc.aspectMask()&(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit) != 0
}

// validateRenderPass checks a render pass's optional shading-rate
// image against the format/dimensionality/aspect it must carry.
func (r *Recorder) validateRenderPass(rp *LogicalRenderPass) error {
	if rp.ShadingRateImage == InvalidID {
		return nil
	}
	desc, ok := r.rm.ImageDesc(rp.ShadingRateImage)
	if !ok {
		return newErr(ContractError, "SubmitRenderPass", "shading-rate-image", errStaleHandle)
	}
	if desc.Format != vk.FormatR8Uint || desc.Is3D || desc.aspectMask() != vk.ImageAspectColorBit {
		return newErr(ConfigError, "SubmitRenderPass", "shading-rate-image", errShadingRateImageInvalid)
	}
	return nil
}

// validatePresent checks a Present task's source image usage and its
// format compatibility with the swapchain it names.
func (r *Recorder) validatePresent(p *PresentParams) error {
	if p == nil {
		return nil
	}
	if err := r.requireImageUsage(p.SourceImage, vk.ImageUsageTransferSrcBit, "Present", "source"); err != nil {
		return err
	}
	srcDesc, ok := r.rm.ImageDesc(p.SourceImage)
	if !ok {
		return newErr(ContractError, "Present", "source", errStaleHandle)
	}
	scFormat, ok := r.rm.swapchainFormat(p.Swapchain)
	if !ok {
		return newErr(ContractError, "Present", "swapchain", errStaleHandle)
	}
	if srcDesc.Format != scFormat {
		return newErr(ConfigError, "Present", "", errPresentFormatMismatch)
	}
	return nil
}

const (
	errMissingBufferUsage      errSentinel = "buffer access requires a usage flag the buffer was not created with"
	errMissingImageUsage       errSentinel = "image access requires a usage flag the image was not created with"
	errBlitFilterMustBeNearest errSentinel = "blit between depth/stencil images must use nearest filtering"
	errShadingRateImageInvalid errSentinel = "shading-rate image must be R8 unsigned, 2D, color aspect"
	errPresentFormatMismatch   errSentinel = "present source image format does not match the swapchain's color format"
)

func (r *Recorder) recordTask(t *TaskNode) error {
	switch t.Kind {
	case SubmitRenderPass:
		return r.recordRenderPassGroup([]*TaskNode{t})
	case DrawVertices, DrawIndexed, DrawVerticesIndirect, DrawIndexedIndirect, DrawMeshes, DrawMeshesIndirect, CustomDraw, CustomTask:
		r.recordDrawCommand(t)
	case DispatchCompute:
		c := t.Compute
		r.bindCompute(c)
		vk.CmdDispatch(r.cmd, c.GroupCountX, c.GroupCountY, c.GroupCountZ)
	case DispatchComputeIndirect:
		c := t.Compute
		r.bindCompute(c)
		vk.CmdDispatchIndirect(r.cmd, r.buf(c.IndirectBuffer), vk.DeviceSize(c.IndirectOffset))
	case CopyBuffer:
		p := t.Copy
		vk.CmdCopyBuffer(r.cmd, r.buf(p.SrcBuffer), r.buf(p.DstBuffer), 1, []vk.BufferCopy{{
			SrcOffset: vk.DeviceSize(p.SrcOffset), DstOffset: vk.DeviceSize(p.DstOffset), Size: vk.DeviceSize(p.Size),
		}})
	case CopyImage:
		p := t.Copy
		vk.CmdCopyImage(r.cmd, r.img(p.SrcImage), vk.ImageLayoutTransferSrcOptimal, r.img(p.DstImage), vk.ImageLayoutTransferDstOptimal, uint32(len(p.ImageRegions)), p.ImageRegions)
	case CopyBufferToImage:
		p := t.Copy
		vk.CmdCopyBufferToImage(r.cmd, r.buf(p.SrcBuffer), r.img(p.DstImage), vk.ImageLayoutTransferDstOptimal, uint32(len(p.Regions)), p.Regions)
	case CopyImageToBuffer:
		p := t.Copy
		vk.CmdCopyImageToBuffer(r.cmd, r.img(p.SrcImage), vk.ImageLayoutTransferSrcOptimal, r.buf(p.DstBuffer), uint32(len(p.Regions)), p.Regions)
	case BlitImage:
		p := t.Copy
		vk.CmdBlitImage(r.cmd, r.img(p.SrcImage), vk.ImageLayoutTransferSrcOptimal, r.img(p.DstImage), vk.ImageLayoutTransferDstOptimal, uint32(len(p.BlitRegions)), p.BlitRegions, p.Filter)
	case GenerateMipmaps:
		return r.recordGenerateMipmaps(t.Copy)
	case ResolveImage:
		p := t.Copy
		vk.CmdResolveImage(r.cmd, r.img(p.SrcImage), vk.ImageLayoutTransferSrcOptimal, r.img(p.DstImage), vk.ImageLayoutTransferDstOptimal, uint32(len(p.ResolveRegions)), p.ResolveRegions)
	case FillBuffer:
		p := t.Copy
		vk.CmdFillBuffer(r.cmd, r.buf(p.DstBuffer), vk.DeviceSize(p.DstOffset), vk.DeviceSize(p.Size), p.FillValue)
	case ClearColorImage:
		p := t.Copy
		desc, _ := r.rm.ImageDesc(p.DstImage)
		vk.CmdClearColorImage(r.cmd, r.img(p.DstImage), vk.ImageLayoutTransferDstOptimal, &p.ClearColor, 1, []vk.ImageSubresourceRange{{
			AspectMask: vk.ImageAspectFlags(desc.aspectMask()), LevelCount: mipExtent(desc), LayerCount: arrayLayers(desc),
		}})
	case ClearDepthStencilImage:
		p := t.Copy
		desc, _ := r.rm.ImageDesc(p.DstImage)
		vk.CmdClearDepthStencilImage(r.cmd, r.img(p.DstImage), vk.ImageLayoutTransferDstOptimal, &p.ClearDepthStencil, 1, []vk.ImageSubresourceRange{{
			AspectMask: vk.ImageAspectFlags(desc.aspectMask()), LevelCount: mipExtent(desc), LayerCount: arrayLayers(desc),
		}})
	case UpdateBuffer:
		p := t.Copy
		vk.CmdUpdateBuffer(r.cmd, r.buf(p.DstBuffer), vk.DeviceSize(p.DstOffset), vk.DeviceSize(len(p.Data)), unsafePtr(p.Data))
	case Present:
		// Layout transition to PresentSrcKHR already realised via the
		// task's ImageAccesses; the actual vkQueuePresentKHR call is
		// issued by the caller through Engine.PresentImage once this
		// batch's signal semaphore fires.
	case UpdateRayTracingShaderTable:
		// Shader-binding-table contents are written by the caller into
		// a mapped buffer (via the staging allocator); nothing to
		// record here beyond the barriers already realised.
	case BuildRayTracingGeometry, BuildRayTracingScene:
		return r.recordAccelerationBuild(t)
	case TraceRays:
		return r.recordTraceRays(t)
	}
	return nil
}

// recordDrawCommand binds a draw task's pipeline, descriptor sets, and
// dynamic state, then issues its draw call. Never realises barriers
// itself: the caller (Execute, or recordRenderPassGroup for nested
// draws) must have already declared the task's accesses to the
// tracker, since barriers cannot be recorded between
// CmdBeginRendering and CmdEndRendering.
func (r *Recorder) recordDrawCommand(t *TaskNode) {
	switch t.Kind {
	case DrawVertices:
		d := t.Draw
		r.bindDraw(d)
		vk.CmdDraw(r.cmd, d.VertexCount, maxU32(d.InstanceCount, 1), d.FirstVertex, d.FirstInstance)
	case DrawIndexed:
		d := t.Draw
		r.bindDraw(d)
		vk.CmdBindIndexBuffer(r.cmd, r.buf(d.IndexBuffer), 0, d.IndexType)
		vk.CmdDrawIndexed(r.cmd, d.IndexCount, maxU32(d.InstanceCount, 1), uint32(d.FirstIndex), d.VertexOffset, d.FirstInstance)
	case DrawVerticesIndirect:
		d := t.Draw
		r.bindDraw(d)
		vk.CmdDrawIndirect(r.cmd, r.buf(d.IndirectBuffer), vk.DeviceSize(d.IndirectOffset), maxU32(d.IndirectCount, 1), 0)
	case DrawIndexedIndirect:
		d := t.Draw
		r.bindDraw(d)
		vk.CmdBindIndexBuffer(r.cmd, r.buf(d.IndexBuffer), 0, d.IndexType)
		vk.CmdDrawIndexedIndirect(r.cmd, r.buf(d.IndirectBuffer), vk.DeviceSize(d.IndirectOffset), maxU32(d.IndirectCount, 1), 0)
	case DrawMeshes:
		d := t.Draw
		r.bindDraw(d)
		vk.CmdDrawMeshTasksEXT(r.cmd, d.MeshGroupCountX, d.MeshGroupCountY, d.MeshGroupCountZ)
	case DrawMeshesIndirect:
		d := t.Draw
		r.bindDraw(d)
		vk.CmdDrawMeshTasksIndirectEXT(r.cmd, r.buf(d.IndirectBuffer), vk.DeviceSize(d.IndirectOffset), maxU32(d.IndirectCount, 1), 0)
	case CustomDraw, CustomTask:
		if t.Custom != nil {
			t.Custom(r.cmd)
		}
	}
}

func (r *Recorder) bindDraw(d *DrawParams) {
	if len(d.Viewports) > 0 {
		vk.CmdSetViewport(r.cmd, 0, uint32(len(d.Viewports)), d.Viewports)
	}
	if len(d.Scissors) > 0 {
		vk.CmdSetScissor(r.cmd, 0, uint32(len(d.Scissors)), d.Scissors)
	}
	if pipe, ok := r.rm.vkPipeline(d.Pipeline); ok {
		vk.CmdBindPipeline(r.cmd, vk.PipelineBindPointGraphics, pipe)
	}
	r.bindDescriptorSets(vk.PipelineBindPointGraphics, d.Pipeline, d.DescriptorSets)
}

func (r *Recorder) bindCompute(c *ComputeParams) {
	if pipe, ok := r.rm.vkPipeline(c.Pipeline); ok {
		vk.CmdBindPipeline(r.cmd, vk.PipelineBindPointCompute, pipe)
	}
	r.bindDescriptorSets(vk.PipelineBindPointCompute, c.Pipeline, c.DescriptorSets)
}

func (r *Recorder) bindDescriptorSets(bindPoint vk.PipelineBindPoint, pipeline RawID, sets []RawID) {
	if len(sets) == 0 {
		return
	}
	layout, ok := r.rm.vkPipelineLayout(pipeline)
	if !ok {
		return
	}
	vkSets := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		if ds, ok := r.rm.vkDescriptorSet(s); ok {
			vkSets = append(vkSets, ds)
		}
	}
	if len(vkSets) == 0 {
		return
	}
	vk.CmdBindDescriptorSets(r.cmd, bindPoint, layout, 0, uint32(len(vkSets)), vkSets, 0, nil)
}

func (r *Recorder) recordGenerateMipmaps(p *CopyParams) error {
	desc, ok := r.rm.ImageDesc(p.DstImage)
	if !ok {
		return logConfigError("GenerateMipmaps", "", errStaleHandle)
	}
	img := r.img(p.DstImage)
	w, h := int32(desc.Extent[0]), int32(desc.Extent[1])
	levels := mipExtent(desc)
	for mip := uint32(1); mip < levels; mip++ {
		srcW, srcH := w, h
		if w > 1 {
			w /= 2
		}
		if h > 1 {
			h /= 2
		}
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(desc.aspectMask()), MipLevel: mip - 1, LayerCount: 1},
			DstSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(desc.aspectMask()), MipLevel: mip, LayerCount: 1},
		}
		blit.SrcOffsets[1] = vk.Offset3D{X: srcW, Y: srcH, Z: 1}
		blit.DstOffsets[1] = vk.Offset3D{X: w, Y: h, Z: 1}
		vk.CmdBlitImage(r.cmd, img, vk.ImageLayoutTransferSrcOptimal, img, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)
	}
	return nil
}

func (r *Recorder) recordAccelerationBuild(t *TaskNode) error {
	if t.Custom != nil {
		t.Custom(r.cmd)
	}
	return nil
}

func (r *Recorder) recordTraceRays(t *TaskNode) error {
	if t.Custom != nil {
		t.Custom(r.cmd)
	}
	return nil
}

// recordRenderPassGroup realises one dynamic-rendering region (one
// CmdBeginRendering/CmdEndRendering pair) covering every pass in
// group, which mergePasses/compatible has already established share
// attachment formats, sample counts, and overlapping viewports. Each
// nested draw's own accesses are declared to the tracker before
// rendering begins, since Vulkan forbids pipeline barriers inside a
// rendering instance.
func (r *Recorder) recordRenderPassGroup(group []*TaskNode) error {
	first := group[0].RenderPass

	var draws []*TaskNode
	for _, t := range group {
		for _, d := range t.RenderPass.Draws {
			if err := r.declare(d); err != nil {
				return err
			}
			draws = append(draws, d)
		}
	}

	colorAttachments := make([]vk.RenderingAttachmentInfo, len(first.ColorAttachments))
	width, height := uint32(0), uint32(0)
	for i, a := range first.ColorAttachments {
		_, view, _ := r.rm.vkImage(a.Image)
		if desc, ok := r.rm.ImageDesc(a.Image); ok {
			width, height = desc.Extent[0], desc.Extent[1]
		}
		colorAttachments[i] = vk.RenderingAttachmentInfo{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutColorAttachmentOptimal,
			LoadOp:      a.LoadOp,
			StoreOp:     a.StoreOp,
			ClearValue:  vk.ClearValue{Color: a.ClearColor},
		}
	}
	var depthInfo *vk.RenderingAttachmentInfo
	if first.DepthAttachment != nil {
		a := first.DepthAttachment
		_, view, _ := r.rm.vkImage(a.Image)
		if desc, ok := r.rm.ImageDesc(a.Image); ok {
			width, height = desc.Extent[0], desc.Extent[1]
		}
		depthInfo = &vk.RenderingAttachmentInfo{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
			LoadOp:      a.LoadOp,
			StoreOp:     a.StoreOp,
			ClearValue:  vk.ClearValue{DepthStencil: a.ClearDepth},
		}
	}

	renderingInfo := vk.RenderingInfo{
		SType:                vk.StructureTypeRenderingInfo,
		RenderArea:           vk.Rect2D{Extent: vk.Extent2D{Width: width, Height: height}},
		LayerCount:           1,
		ColorAttachmentCount: uint32(len(colorAttachments)),
		PColorAttachments:    colorAttachments,
		PDepthAttachment:     depthInfo,
	}
	vk.CmdBeginRendering(r.cmd, &renderingInfo)
	if len(first.Viewports) > 0 {
		vk.CmdSetViewport(r.cmd, 0, uint32(len(first.Viewports)), first.Viewports)
	}
	if len(first.Scissors) > 0 {
		vk.CmdSetScissor(r.cmd, 0, uint32(len(first.Scissors)), first.Scissors)
	}
	for _, d := range draws {
		r.recordDrawCommand(d)
	}
	vk.CmdEndRendering(r.cmd)
	return nil
}

func (r *Recorder) buf(id RawID) vk.Buffer {
	b, _ := r.rm.vkBuffer(id)
	return b
}

func (r *Recorder) img(id RawID) vk.Image {
	i, _, _ := r.rm.vkImage(id)
	return i
}

func maxU32(v, min uint32) uint32 {
	if v == 0 {
		return min
	}
	return v
}

func unsafePtr(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Pointer(&data[0])
}
