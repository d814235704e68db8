// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// ResourceManager owns every GPU resource slot for one device: the
// per-kind generational slot tables and the content-addressed caches
// over the cacheable kinds (samplers, descriptor-set layouts,
// pipeline-resource sets). There is no render-pass cache: rendering
// uses dynamic rendering and creates no VkRenderPass. A resource's Vulkan object is
// destroyed the instant its reference count reaches zero. A batch that
// touches a resource via a declared buffer/image access acquires its
// own reference on it (see Recorder.declare in recorder.go) and
// registers the matching release against CommandBatch.AddResourceRelease,
// so a resource released by its original owner while still referenced
// by an uncomplete batch is not actually destroyed until that batch
// reaches Complete (see batch.go); there is no separate
// ready-to-delete queue.
type ResourceManager struct {
	gp *GPU
	dv *Device

	buffers      *slotTable[bufferResource]
	images       *slotTable[imageResource]
	samplers     *slotTable[samplerResource]
	setLayouts   *slotTable[descriptorSetLayoutResource]
	resourceSets *slotTable[pipelineResourceSetResource]
	pipelines    *slotTable[pipelineResource]
	swapchains   *slotTable[swapchainResource]

	samplerCache     *dedupCache[SamplerDesc]
	setLayoutCache   *dedupCache[string]
	resourceSetCache *dedupCache[string]

	onReleaseMu sync.Mutex
	onRelease   map[ResourceID]func()

	compilersMu sync.Mutex
	compilers   []PipelineCompiler
}

// NewResourceManager creates an empty resource manager bound to dv.
func NewResourceManager(gp *GPU, dv *Device) *ResourceManager {
	return &ResourceManager{
		gp:               gp,
		dv:               dv,
		buffers:          &slotTable[bufferResource]{},
		images:           &slotTable[imageResource]{},
		samplers:         &slotTable[samplerResource]{},
		setLayouts:       &slotTable[descriptorSetLayoutResource]{},
		resourceSets:     &slotTable[pipelineResourceSetResource]{},
		pipelines:        &slotTable[pipelineResource]{},
		swapchains:       &slotTable[swapchainResource]{},
		samplerCache:     newDedupCache[SamplerDesc](),
		setLayoutCache:   newDedupCache[string](),
		resourceSetCache: newDedupCache[string](),
		onRelease:        make(map[ResourceID]func()),
	}
}

// RegisterPipelineCompiler appends a compiler to the ordered list
// tried when a pipeline is created. Order of registration is the order
// compilers are tried.
func (rm *ResourceManager) RegisterPipelineCompiler(c PipelineCompiler) {
	rm.compilersMu.Lock()
	defer rm.compilersMu.Unlock()
	rm.compilers = append(rm.compilers, c)
}

////////////////////////////////////////////////////////////////////////
// Buffers

// CreateBuffer allocates a new device buffer and returns an owned
// handle carrying one reference.
func (rm *ResourceManager) CreateBuffer(desc BufferDesc, debugName string) (OwnedID, error) {
	br, err := createBuffer(rm.gp, rm.dv, desc)
	if err != nil {
		return InvalidID, logConfigError("CreateBuffer", debugName, err)
	}
	return rm.buffers.alloc(*br, debugName), nil
}

// BufferDesc returns the description a buffer handle was created
// with. The second return value is false for a stale or unknown
// handle.
func (rm *ResourceManager) BufferDesc(id RawID) (BufferDesc, bool) {
	br, ok := rm.buffers.get(id)
	if !ok {
		return BufferDesc{}, false
	}
	return br.desc, true
}

// ReleaseBuffer drops a reference on id, destroying the buffer's
// Vulkan objects once the count reaches zero.
func (rm *ResourceManager) ReleaseBuffer(id OwnedID) {
	count, ok := rm.buffers.release(id)
	if !ok {
		logOrPanic("ReleaseBuffer", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	br, _ := rm.buffers.get(id)
	if br != nil {
		destroyBuffer(rm.dv, br)
	}
	rm.buffers.free(id)
	rm.fireOnRelease(id)
}

// AcquireBuffer bumps id's refcount on behalf of a caller that will
// release it again later -- a batch holding it open past its
// original owner's release, for instance -- returning false if id is
// stale.
func (rm *ResourceManager) AcquireBuffer(id RawID) bool {
	return rm.buffers.acquire(id)
}

////////////////////////////////////////////////////////////////////////
// Images

// CreateImage allocates a new device image plus a default full-range
// view, returning an owned handle.
func (rm *ResourceManager) CreateImage(desc ImageDesc, debugName string) (OwnedID, error) {
	ir, err := createImage(rm.gp, rm.dv, desc)
	if err != nil {
		return InvalidID, logConfigError("CreateImage", debugName, err)
	}
	return rm.images.alloc(*ir, debugName), nil
}

// CreateExternalImage wraps a caller-owned VkImage (typically a
// swapchain image): the manager builds and owns a view for it, but
// never destroys the image itself. onRelease, if non-nil, fires
// exactly once when the slot is finally released.
func (rm *ResourceManager) CreateExternalImage(img vk.Image, desc ImageDesc, onRelease func(), debugName string) (OwnedID, error) {
	ir, err := createExternalImage(rm.dv, img, desc)
	if err != nil {
		return InvalidID, logConfigError("CreateExternalImage", debugName, err)
	}
	id := rm.images.alloc(*ir, debugName)
	if onRelease != nil {
		rm.onReleaseMu.Lock()
		rm.onRelease[id] = onRelease
		rm.onReleaseMu.Unlock()
	}
	return id, nil
}

func (rm *ResourceManager) ImageDesc(id RawID) (ImageDesc, bool) {
	ir, ok := rm.images.get(id)
	if !ok {
		return ImageDesc{}, false
	}
	return ir.desc, true
}

// AcquireImage is AcquireBuffer for the image slot table.
func (rm *ResourceManager) AcquireImage(id RawID) bool {
	return rm.images.acquire(id)
}

func (rm *ResourceManager) ReleaseImage(id OwnedID) {
	count, ok := rm.images.release(id)
	if !ok {
		logOrPanic("ReleaseImage", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	ir, _ := rm.images.get(id)
	if ir != nil {
		destroyImage(rm.dv, ir)
	}
	rm.images.free(id)
	rm.fireOnRelease(id)
}

////////////////////////////////////////////////////////////////////////
// Samplers (cacheable)

// CacheSampler returns the shared handle for desc, creating it on
// first use. Every subsequent call with an equal desc returns the same
// handle with its reference count bumped; the caller must still
// Release it once per successful call.
func (rm *ResourceManager) CacheSampler(desc SamplerDesc) (RawID, error) {
	return rm.samplerCache.getOrCreate(
		desc,
		rm.samplers.acquire,
		func() (ResourceID, error) {
			sr, err := createSampler(rm.gp, rm.dv, desc)
			if err != nil {
				return InvalidID, logConfigError("CacheSampler", "", err)
			}
			return rm.samplers.alloc(*sr, "sampler"), nil
		},
	)
}

func (rm *ResourceManager) ReleaseSampler(id OwnedID) {
	count, ok := rm.samplers.release(id)
	if !ok {
		logOrPanic("ReleaseSampler", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	sr, _ := rm.samplers.get(id)
	if sr != nil {
		rm.samplerCache.evict(sr.desc)
		destroySampler(rm.dv, sr)
	}
	rm.samplers.free(id)
	rm.fireOnRelease(id)
}

////////////////////////////////////////////////////////////////////////
// Descriptor set layouts and pipeline-resource sets (cacheable)

// CreateDescriptorSetLayout returns the shared handle for desc,
// creating it on first use.
func (rm *ResourceManager) CreateDescriptorSetLayout(desc DescriptorSetLayoutDesc) (RawID, error) {
	return rm.setLayoutCache.getOrCreate(
		desc.cacheKey(),
		rm.setLayouts.acquire,
		func() (ResourceID, error) {
			lr, err := createDescriptorSetLayout(rm.dv, desc)
			if err != nil {
				return InvalidID, logConfigError("CreateDescriptorSetLayout", "", err)
			}
			return rm.setLayouts.alloc(*lr, "descriptor-set-layout"), nil
		},
	)
}

func (rm *ResourceManager) ReleaseDescriptorSetLayout(id OwnedID) {
	count, ok := rm.setLayouts.release(id)
	if !ok {
		logOrPanic("ReleaseDescriptorSetLayout", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	lr, _ := rm.setLayouts.get(id)
	if lr != nil {
		rm.setLayoutCache.evict(lr.desc.cacheKey())
		destroyDescriptorSetLayout(rm.dv, lr)
	}
	rm.setLayouts.free(id)
	rm.fireOnRelease(id)
}

// CreatePipelineResourceSet materializes desc's bindings into a
// VkDescriptorSet, returning the shared handle for an equal desc on
// repeat calls.
func (rm *ResourceManager) CreatePipelineResourceSet(desc PipelineResourceSetDesc) (RawID, error) {
	return rm.resourceSetCache.getOrCreate(
		desc.cacheKey(),
		rm.resourceSets.acquire,
		func() (ResourceID, error) {
			sr, err := createPipelineResourceSet(rm, desc)
			if err != nil {
				return InvalidID, logConfigError("CreatePipelineResourceSet", "", err)
			}
			return rm.resourceSets.alloc(*sr, "pipeline-resource-set"), nil
		},
	)
}

func (rm *ResourceManager) ReleasePipelineResourceSet(id OwnedID) {
	count, ok := rm.resourceSets.release(id)
	if !ok {
		logOrPanic("ReleasePipelineResourceSet", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	sr, _ := rm.resourceSets.get(id)
	if sr != nil {
		rm.resourceSetCache.evict(sr.desc.cacheKey())
		destroyPipelineResourceSet(rm.dv, sr)
	}
	rm.resourceSets.free(id)
	rm.fireOnRelease(id)
}

////////////////////////////////////////////////////////////////////////

func (rm *ResourceManager) fireOnRelease(id ResourceID) {
	rm.onReleaseMu.Lock()
	cb, ok := rm.onRelease[id]
	if ok {
		delete(rm.onRelease, id)
	}
	rm.onReleaseMu.Unlock()
	if ok {
		cb()
	}
}

// internal accessors used by the tracker, recorder, and render-pass
// builder to reach the live Vulkan handles without exposing payload
// structs publicly.

func (rm *ResourceManager) vkBuffer(id RawID) (vk.Buffer, bool) {
	br, ok := rm.buffers.get(id)
	if !ok {
		return vk.NullBuffer, false
	}
	return br.buffer, true
}

func (rm *ResourceManager) vkImage(id RawID) (vk.Image, vk.ImageView, bool) {
	ir, ok := rm.images.get(id)
	if !ok {
		return vk.NullImage, vk.NullImageView, false
	}
	return ir.image, ir.view, true
}

// rawBuffer exposes the full buffer payload -- including the mapped
// host pointer and coherency flag -- to the staging allocator, which
// needs to write through the mapping and issue flush/invalidate
// ranges directly rather than going through a copy command.
func (rm *ResourceManager) rawBuffer(id RawID) (*bufferResource, bool) {
	return rm.buffers.get(id)
}

func (rm *ResourceManager) vkSampler(id RawID) (vk.Sampler, bool) {
	sr, ok := rm.samplers.get(id)
	if !ok {
		return vk.NullSampler, false
	}
	return sr.sampler, true
}

func (rm *ResourceManager) vkPipeline(id RawID) (vk.Pipeline, bool) {
	pr, ok := rm.pipelines.get(id)
	if !ok {
		return vk.NullPipeline, false
	}
	return pr.pipeline, true
}

func (rm *ResourceManager) vkPipelineLayout(id RawID) (vk.PipelineLayout, bool) {
	pr, ok := rm.pipelines.get(id)
	if !ok {
		return vk.NullPipelineLayout, false
	}
	return pr.layout, true
}

func (rm *ResourceManager) vkDescriptorSet(id RawID) (vk.DescriptorSet, bool) {
	sr, ok := rm.resourceSets.get(id)
	if !ok {
		return vk.NullDescriptorSet, false
	}
	return sr.set, true
}

func (rm *ResourceManager) vkSwapchain(id RawID) (vk.Swapchain, bool) {
	sr, ok := rm.swapchains.get(id)
	if !ok {
		return vk.NullSwapchain, false
	}
	return sr.swapchain, true
}

// swapchainFormat returns the colour format a swapchain was created
// with, used by Present validation to check source-image compatibility.
func (rm *ResourceManager) swapchainFormat(id RawID) (vk.Format, bool) {
	sr, ok := rm.swapchains.get(id)
	if !ok {
		return 0, false
	}
	return sr.format, true
}

const errStaleHandle errSentinel = "stale or unknown resource handle"
