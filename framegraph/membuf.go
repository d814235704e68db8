// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// BufferDesc is the create_buffer descriptor: size, usage, and whether
// the backing memory must be host-visible (for staging-ring buffers
// and readback targets) or may live device-local.
type BufferDesc struct {
	Size        uint64
	Usage       vk.BufferUsageFlagBits
	HostVisible bool
	// QueueFamilies lists every family that will access this buffer. A
	// single entry means VK_SHARING_MODE_EXCLUSIVE; more than one
	// switches to VK_SHARING_MODE_CONCURRENT so the tracker never has
	// to emit a queue-family-ownership-transfer barrier for it.
	QueueFamilies []uint32
}

// bufferResource is the payload stored in a Buffer slot.
type bufferResource struct {
	desc    BufferDesc
	buffer  vk.Buffer
	memory  vk.DeviceMemory
	hostPtr unsafe.Pointer // non-nil iff desc.HostVisible
	coherent bool
}

// createBuffer allocates a VkBuffer and binds device memory for it,
// mapping the memory for the lifetime of the buffer when HostVisible
// is set. A single combined buffer rather than a host/device pair,
// since transfer staging is handled separately.
func createBuffer(gp *GPU, dv *Device, desc BufferDesc) (*bufferResource, error) {
	if desc.Size == 0 {
		return nil, newErr(ConfigError, "createBuffer", "", errZeroSize)
	}
	info := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Usage: vk.BufferUsageFlags(desc.Usage),
		Size:  vk.DeviceSize(desc.Size),
	}
	if len(desc.QueueFamilies) > 1 {
		info.SharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = uint32(len(desc.QueueFamilies))
		info.PQueueFamilyIndices = desc.QueueFamilies
	} else {
		info.SharingMode = vk.SharingModeExclusive
	}

	var buf vk.Buffer
	if ret := vk.CreateBuffer(dv.Device, &info, nil, &buf); ret != vk.Success {
		return nil, newErr(DeviceError, "createBuffer", "", vkErr("vkCreateBuffer", ret))
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dv.Device, buf, &reqs)
	reqs.Deref()

	want := vk.MemoryPropertyDeviceLocalBit
	coherent := false
	if desc.HostVisible {
		want = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	typeIdx, err := gp.MemoryTypeIndex(reqs.MemoryTypeBits, want)
	if err != nil && desc.HostVisible {
		// Retry without requiring coherence; the caller must then use
		// explicit flush/invalidate ranges (see staging.go).
		typeIdx, err = gp.MemoryTypeIndex(reqs.MemoryTypeBits, vk.MemoryPropertyHostVisibleBit)
	}
	if err == nil && desc.HostVisible {
		coherentMask, cerr := gp.MemoryTypeIndex(reqs.MemoryTypeBits, want|vk.MemoryPropertyHostCoherentBit)
		coherent = cerr == nil && coherentMask == typeIdx
	}
	if err != nil {
		vk.DestroyBuffer(dv.Device, buf, nil)
		return nil, err
	}

	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(dv.Device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIdx,
	}, nil, &mem)
	if ret != vk.Success {
		vk.DestroyBuffer(dv.Device, buf, nil)
		return nil, newErr(DeviceError, "createBuffer", "", vkErr("vkAllocateMemory", ret))
	}
	if ret := vk.BindBufferMemory(dv.Device, buf, mem, 0); ret != vk.Success {
		vk.FreeMemory(dv.Device, mem, nil)
		vk.DestroyBuffer(dv.Device, buf, nil)
		return nil, newErr(DeviceError, "createBuffer", "", vkErr("vkBindBufferMemory", ret))
	}

	br := &bufferResource{desc: desc, buffer: buf, memory: mem, coherent: coherent}
	if desc.HostVisible {
		var ptr unsafe.Pointer
		if ret := vk.MapMemory(dv.Device, mem, 0, vk.DeviceSize(desc.Size), 0, &ptr); ret != vk.Success {
			destroyBuffer(dv, br)
			return nil, newErr(DeviceError, "createBuffer", "", vkErr("vkMapMemory", ret))
		}
		br.hostPtr = ptr
	}
	return br, nil
}

// destroyBuffer unmaps (if mapped), frees memory, and destroys the
// buffer. Safe to call on a zero-value bufferResource.
func destroyBuffer(dv *Device, br *bufferResource) {
	if br == nil || br.buffer == vk.NullBuffer {
		return
	}
	if br.hostPtr != nil {
		vk.UnmapMemory(dv.Device, br.memory)
		br.hostPtr = nil
	}
	if br.memory != vk.NullDeviceMemory {
		vk.FreeMemory(dv.Device, br.memory, nil)
		br.memory = vk.NullDeviceMemory
	}
	vk.DestroyBuffer(dv.Device, br.buffer, nil)
	br.buffer = vk.NullBuffer
}

// flushRange and invalidateRange issue explicit mapped-memory-range
// operations for host-visible-but-non-coherent buffer memory, used by
// the staging allocator around every store/load.
func flushRange(dv *Device, br *bufferResource, offset, size uint64) error {
	if br.coherent {
		return nil
	}
	rng := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: br.memory,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}
	return vkErr("vkFlushMappedMemoryRanges", vk.FlushMappedMemoryRanges(dv.Device, 1, []vk.MappedMemoryRange{rng}))
}

func invalidateRange(dv *Device, br *bufferResource, offset, size uint64) error {
	if br.coherent {
		return nil
	}
	rng := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: br.memory,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}
	return vkErr("vkInvalidateMappedMemoryRanges", vk.InvalidateMappedMemoryRanges(dv.Device, 1, []vk.MappedMemoryRange{rng}))
}

const errZeroSize errSentinel = "buffer size must be non-zero"
