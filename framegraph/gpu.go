// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// GPU wraps a caller-supplied physical device, caching the property
// and memory-type queries the resource manager and staging allocator
// consult on every allocation. It never creates the VkInstance or
// VkPhysicalDevice behind it; NewGPU takes an already-selected
// vk.PhysicalDevice.
type GPU struct {
	PhysicalDevice vk.PhysicalDevice

	Properties       vk.PhysicalDeviceProperties
	MemoryProperties vk.PhysicalDeviceMemoryProperties
	Features         vk.PhysicalDeviceFeatures
}

// NewGPU queries the caller-supplied physical device's properties,
// memory types, and features. It issues only read-only "get" calls;
// it never creates or destroys any Vulkan object.
func NewGPU(physicalDevice vk.PhysicalDevice) *GPU {
	gp := &GPU{PhysicalDevice: physicalDevice}
	vk.GetPhysicalDeviceProperties(physicalDevice, &gp.Properties)
	gp.Properties.Deref()
	gp.Properties.Limits.Deref()
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &gp.MemoryProperties)
	gp.MemoryProperties.Deref()
	vk.GetPhysicalDeviceFeatures(physicalDevice, &gp.Features)
	gp.Features.Deref()
	return gp
}

// MemoryTypeIndex finds the first memory type allowed by typeBits whose
// property flags are a superset of want, returning an exhaustion error
// if none qualify.
func (gp *GPU) MemoryTypeIndex(typeBits uint32, want vk.MemoryPropertyFlagBits) (uint32, error) {
	for i := uint32(0); i < gp.MemoryProperties.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		gp.MemoryProperties.MemoryTypes[i].Deref()
		if vk.MemoryPropertyFlagBits(gp.MemoryProperties.MemoryTypes[i].PropertyFlags)&want == want {
			return i, nil
		}
	}
	return 0, newErr(ExhaustionError, "MemoryTypeIndex", "", errNoMemoryType)
}

// MemoryTypeIndexFallback is MemoryTypeIndex with a second, looser
// property mask to try if the first yields nothing -- used for host
// buffers on GPUs without a coherent host-visible heap, where callers
// fall back from host-coherent to plain host-visible.
func (gp *GPU) MemoryTypeIndexFallback(typeBits uint32, want, fallback vk.MemoryPropertyFlagBits) (uint32, error) {
	if idx, err := gp.MemoryTypeIndex(typeBits, want); err == nil {
		return idx, nil
	}
	return gp.MemoryTypeIndex(typeBits, fallback)
}

// MinUniformAlign and MinStorageAlign report the device's minimum
// dynamic-offset alignment requirements for the two dynamic-offset
// descriptor kinds the resource manager caches.
func (gp *GPU) MinUniformAlign() uint64 {
	return uint64(gp.Properties.Limits.MinUniformBufferOffsetAlignment)
}

func (gp *GPU) MinStorageAlign() uint64 {
	return uint64(gp.Properties.Limits.MinStorageBufferOffsetAlignment)
}

func (gp *GPU) MaxStorageBufferRange() uint64 {
	return uint64(gp.Properties.Limits.MaxStorageBufferRange)
}

var errNoMemoryType = errMemoryType{}

type errMemoryType struct{}

func (errMemoryType) Error() string { return "no memory type satisfies the requested properties" }
