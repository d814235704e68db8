// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// cmdBufCache recycles command buffers from one VkCommandPool per
// queue family, the same recycle-or-allocate shape as fenceCache.
type cmdBufCache struct {
	dv     *Device
	family uint32

	mu   sync.Mutex
	pool vk.CommandPool
	free []vk.CommandBuffer
	used []vk.CommandBuffer
}

func newCmdBufCache(dv *Device, family uint32) (*cmdBufCache, error) {
	c := &cmdBufCache{dv: dv, family: family}
	ret := vk.CreateCommandPool(dv.Device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}, nil, &c.pool)
	if ret != vk.Success {
		return nil, newErr(DeviceError, "newCmdBufCache", "", vkErr("vkCreateCommandPool", ret))
	}
	return c, nil
}

// Acquire returns a command buffer ready to begin recording, either
// recycled (reset) or freshly allocated.
func (c *cmdBufCache) Acquire(secondary bool) (vk.CommandBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.free); n > 0 {
		cb := c.free[n-1]
		c.free = c.free[:n-1]
		vk.ResetCommandBuffer(cb, vk.CommandBufferResetFlags(0))
		c.used = append(c.used, cb)
		return cb, nil
	}
	level := vk.CommandBufferLevelPrimary
	if secondary {
		level = vk.CommandBufferLevelSecondary
	}
	bufs := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(c.dv.Device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.pool,
		Level:              level,
		CommandBufferCount: 1,
	}, bufs)
	if ret != vk.Success {
		return nil, newErr(DeviceError, "cmdBufCache.Acquire", "", vkErr("vkAllocateCommandBuffers", ret))
	}
	c.used = append(c.used, bufs[0])
	return bufs[0], nil
}

// Release returns cb to the free list for reuse once its batch is
// Complete.
func (c *cmdBufCache) Release(cb vk.CommandBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, u := range c.used {
		if u == cb {
			c.used = append(c.used[:i], c.used[i+1:]...)
			break
		}
	}
	c.free = append(c.free, cb)
}

func (c *cmdBufCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	vk.DestroyCommandPool(c.dv.Device, c.pool, nil)
	c.free, c.used = nil, nil
}
