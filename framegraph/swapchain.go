// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// swapchainResource is the payload stored in a Swapchain slot: the
// VkSwapchainKHR itself plus the external images wrapping each of its
// VkImages, so releasing the swapchain also releases every image.
type swapchainResource struct {
	info      SwapchainCreateInfo
	swapchain vk.Swapchain
	format    vk.Format
	extent    vk.Extent2D
	images    []OwnedID
}

// CreateSwapchain builds a swapchain from a caller-supplied Surface
// and SwapchainCreateInfo, choosing the first acceptable (format,
// color space) and present mode, falling back to FIFO / unorm BGRA8 /
// opaque composite when the caller lists none. Every swapchain
// image is wrapped with CreateExternalImage, so the images it returns
// behave exactly like any other image handle everywhere else in this
// package (barrier tracking, render-pass attachments, ...); releasing
// the returned handle releases them too.
func (rm *ResourceManager) CreateSwapchain(info SwapchainCreateInfo, debugName string) (OwnedID, []RawID, error) {
	format, colorSpace := chooseSurfaceFormat(info.AcceptableFormats)
	presentMode := choosePresentMode(info.AcceptablePresents)
	usage := info.RequiredUsage | info.OptionalUsage
	if usage == 0 {
		usage = vk.ImageUsageColorAttachmentBit
	}
	compositeAlpha := info.CompositeAlpha
	if compositeAlpha == 0 {
		compositeAlpha = vk.CompositeAlphaOpaqueBit
	}

	ci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          info.Surface,
		MinImageCount:    info.DesiredImageCount,
		ImageFormat:      format,
		ImageColorSpace:  colorSpace,
		ImageExtent:      vk.Extent2D{Width: info.Size[0], Height: info.Size[1]},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     info.PreTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	var sc vk.Swapchain
	if ret := vk.CreateSwapchain(rm.dv.Device, &ci, nil, &sc); ret != vk.Success {
		return InvalidID, nil, logConfigError("CreateSwapchain", debugName, vkErr("vkCreateSwapchain", ret))
	}

	var count uint32
	vk.GetSwapchainImages(rm.dv.Device, sc, &count, nil)
	imgs := make([]vk.Image, count)
	if ret := vk.GetSwapchainImages(rm.dv.Device, sc, &count, imgs); ret != vk.Success {
		vk.DestroySwapchain(rm.dv.Device, sc, nil)
		return InvalidID, nil, logConfigError("CreateSwapchain", debugName, vkErr("vkGetSwapchainImages", ret))
	}

	desc := ImageDesc{
		Extent:      [3]uint32{info.Size[0], info.Size[1], 1},
		Format:      format,
		Usage:       usage,
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
	}
	owned := make([]OwnedID, len(imgs))
	raw := make([]RawID, len(imgs))
	for i, img := range imgs {
		id, err := rm.CreateExternalImage(img, desc, nil, fmt.Sprintf("%s-image-%d", debugName, i))
		if err != nil {
			for _, done := range owned[:i] {
				rm.ReleaseImage(done)
			}
			vk.DestroySwapchain(rm.dv.Device, sc, nil)
			return InvalidID, nil, err
		}
		owned[i] = id
		raw[i] = Raw(id)
	}

	sr := swapchainResource{info: info, swapchain: sc, format: format, extent: ci.ImageExtent, images: owned}
	return rm.swapchains.alloc(sr, debugName), raw, nil
}

// ReleaseSwapchain drops a reference on id, destroying the swapchain
// and every image it owns once the count reaches zero.
func (rm *ResourceManager) ReleaseSwapchain(id OwnedID) {
	count, ok := rm.swapchains.release(id)
	if !ok {
		logOrPanic("ReleaseSwapchain", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	sr, _ := rm.swapchains.get(id)
	if sr != nil {
		for _, img := range sr.images {
			rm.ReleaseImage(img)
		}
		vk.DestroySwapchain(rm.dv.Device, sr.swapchain, nil)
	}
	rm.swapchains.free(id)
	rm.fireOnRelease(id)
}

// chooseSurfaceFormat picks the first caller-acceptable (format, color
// space) pair, falling back to BGRA8 unorm with the zero-value color
// space if the caller supplied no acceptable formats at all.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.Format, vk.ColorSpace) {
	if len(formats) > 0 {
		return formats[0].Format, formats[0].ColorSpace
	}
	var cs vk.ColorSpace
	return vk.FormatB8g8r8a8Unorm, cs
}

func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	if len(modes) > 0 {
		return modes[0]
	}
	return vk.PresentModeFifo
}

// AcquireNextImage acquires the next available swapchain image,
// returning its index and a semaphore signalled once the image is
// actually available -- the caller threads this semaphore into the
// CommandBatch that renders into the image as a wait semaphore, and
// should release it back via the batch's OnComplete hook once the
// batch using it has completed.
func (e *Engine) AcquireNextImage(swapchain RawID, timeoutNs uint64) (uint32, vk.Semaphore, error) {
	sc, ok := e.rm.vkSwapchain(swapchain)
	if !ok {
		return 0, nil, newErr(ContractError, "Engine.AcquireNextImage", "", errStaleHandle)
	}
	sem, err := e.acquireSemaphore()
	if err != nil {
		return 0, nil, err
	}
	var idx uint32
	ret := vk.AcquireNextImage(e.dv.Device, sc, timeoutNs, sem, vk.NullFence, &idx)
	switch ret {
	case vk.Success, vk.Suboptimal:
		return idx, sem, nil
	default:
		e.releaseSemaphore(sem)
		return 0, nil, newErr(DeviceError, "Engine.AcquireNextImage", "", vkErr("vkAcquireNextImage", ret))
	}
}

// PresentImage issues the vkQueuePresentKHR call a Present task's
// ImageIndex/Swapchain describe, waiting on wait (typically the
// semaphore the recording batch signalled on completion) before the
// presentation engine reads the image.
func (e *Engine) PresentImage(queue QueueKind, swapchain RawID, imageIndex uint32, wait vk.Semaphore) error {
	sc, ok := e.rm.vkSwapchain(swapchain)
	if !ok {
		return newErr(ContractError, "Engine.PresentImage", "", errStaleHandle)
	}
	qb := e.dv.queues[queue]
	info := vk.PresentInfo{
		SType:         vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:   []vk.Swapchain{sc},
		PImageIndices: []uint32{imageIndex},
	}
	if wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{wait}
	}
	qb.mu.Lock()
	ret := vk.QueuePresent(qb.queue, &info)
	qb.mu.Unlock()
	switch ret {
	case vk.Success, vk.Suboptimal:
		return nil
	default:
		return newErr(DeviceError, "Engine.PresentImage", qb.name, vkErr("vkQueuePresent", ret))
	}
}
