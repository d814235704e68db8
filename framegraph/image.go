// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// ImageDesc is the create_image descriptor.
type ImageDesc struct {
	Format        vk.Format
	Extent        [3]uint32 // width, height, depth (depth=1 for 2D)
	MipLevels     uint32
	ArrayLayers   uint32
	Samples       vk.SampleCountFlagBits
	Usage         vk.ImageUsageFlagBits
	Is3D          bool
	IsCube        bool
	QueueFamilies []uint32
}

func (d ImageDesc) imageType() vk.ImageType {
	if d.Is3D {
		return vk.ImageType3d
	}
	return vk.ImageType2d
}

func (d ImageDesc) viewType() vk.ImageViewType {
	switch {
	case d.Is3D:
		return vk.ImageViewType3d
	case d.IsCube && d.ArrayLayers > 6:
		return vk.ImageViewTypeCubeArray
	case d.IsCube:
		return vk.ImageViewTypeCube
	case d.ArrayLayers > 1:
		return vk.ImageViewType2dArray
	default:
		return vk.ImageViewType2d
	}
}

// aspectMask derives the image aspect from its format, mirroring the
// depth/stencil/color split every Vulkan barrier and view needs.
func (d ImageDesc) aspectMask() vk.ImageAspectFlagBits {
	switch d.Format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatX8D24UnormPack32:
		return vk.ImageAspectDepthBit
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	case vk.FormatS8Uint:
		return vk.ImageAspectStencilBit
	default:
		return vk.ImageAspectColorBit
	}
}

// imageResource is the payload stored in an Image slot: the image, its
// backing memory, and a full-resource default view used whenever a
// task does not ask for a partial-range view.
type imageResource struct {
	desc     ImageDesc
	image    vk.Image
	memory   vk.DeviceMemory
	view     vk.ImageView
	external bool // true for create_external_image: memory/image not ours to free
}

func mipExtent(d ImageDesc) uint32 {
	if d.MipLevels == 0 {
		return 1
	}
	return d.MipLevels
}

func arrayLayers(d ImageDesc) uint32 {
	if d.ArrayLayers == 0 {
		return 1
	}
	return d.ArrayLayers
}

func sampleCount(d ImageDesc) vk.SampleCountFlagBits {
	if d.Samples == 0 {
		return vk.SampleCount1Bit
	}
	return d.Samples
}

// createImage allocates a VkImage, binds device-local memory, and
// builds a default full-resource VkImageView for it.
func createImage(gp *GPU, dv *Device, desc ImageDesc) (*imageResource, error) {
	if desc.Extent[0] == 0 || desc.Extent[1] == 0 {
		return nil, newErr(ConfigError, "createImage", "", errZeroSize)
	}
	if desc.Extent[2] == 0 {
		desc.Extent[2] = 1
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: desc.imageType(),
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width: desc.Extent[0], Height: desc.Extent[1], Depth: desc.Extent[2],
		},
		MipLevels:     mipExtent(desc),
		ArrayLayers:   arrayLayers(desc),
		Samples:       sampleCount(desc),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.IsCube {
		info.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	if len(desc.QueueFamilies) > 1 {
		info.SharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = uint32(len(desc.QueueFamilies))
		info.PQueueFamilyIndices = desc.QueueFamilies
	} else {
		info.SharingMode = vk.SharingModeExclusive
	}

	var img vk.Image
	if ret := vk.CreateImage(dv.Device, &info, nil, &img); ret != vk.Success {
		return nil, newErr(DeviceError, "createImage", "", vkErr("vkCreateImage", ret))
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dv.Device, img, &reqs)
	reqs.Deref()
	typeIdx, err := gp.MemoryTypeIndex(reqs.MemoryTypeBits, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(dv.Device, img, nil)
		return nil, err
	}

	var mem vk.DeviceMemory
	if ret := vk.AllocateMemory(dv.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIdx,
	}, nil, &mem); ret != vk.Success {
		vk.DestroyImage(dv.Device, img, nil)
		return nil, newErr(DeviceError, "createImage", "", vkErr("vkAllocateMemory", ret))
	}
	if ret := vk.BindImageMemory(dv.Device, img, mem, 0); ret != vk.Success {
		vk.FreeMemory(dv.Device, mem, nil)
		vk.DestroyImage(dv.Device, img, nil)
		return nil, newErr(DeviceError, "createImage", "", vkErr("vkBindImageMemory", ret))
	}

	view, err := createImageView(dv, img, desc)
	if err != nil {
		vk.FreeMemory(dv.Device, mem, nil)
		vk.DestroyImage(dv.Device, img, nil)
		return nil, err
	}
	return &imageResource{desc: desc, image: img, memory: mem, view: view}, nil
}

func createImageView(dv *Device, img vk.Image, desc ImageDesc) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(dv.Device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: desc.viewType(),
		Format:   desc.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(desc.aspectMask()),
			LevelCount:     mipExtent(desc),
			LayerCount:     arrayLayers(desc),
		},
	}, nil, &view)
	if ret != vk.Success {
		return vk.NullImageView, newErr(DeviceError, "createImageView", "", vkErr("vkCreateImageView", ret))
	}
	return view, nil
}

// createExternalImage wraps a caller-created and caller-owned VkImage
// (e.g. a swapchain image) in an imageResource that the resource
// manager tracks but never destroys the underlying vk.Image for.
func createExternalImage(dv *Device, img vk.Image, desc ImageDesc) (*imageResource, error) {
	view, err := createImageView(dv, img, desc)
	if err != nil {
		return nil, err
	}
	return &imageResource{desc: desc, image: img, view: view, external: true}, nil
}

func destroyImage(dv *Device, ir *imageResource) {
	if ir == nil {
		return
	}
	if ir.view != vk.NullImageView {
		vk.DestroyImageView(dv.Device, ir.view, nil)
		ir.view = vk.NullImageView
	}
	if ir.external {
		return
	}
	if ir.memory != vk.NullDeviceMemory {
		vk.FreeMemory(dv.Device, ir.memory, nil)
		ir.memory = vk.NullDeviceMemory
	}
	if ir.image != vk.NullImage {
		vk.DestroyImage(dv.Device, ir.image, nil)
		ir.image = vk.NullImage
	}
}
