// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// fenceCache recycles fences: Acquire returns a free one (reset and
// ready to use) or allocates a new one if none are free, and Destroy
// waits on every fence currently checked out and then destroys every
// fence the cache holds.
type fenceCache struct {
	dv *Device

	mu      sync.Mutex
	free    []vk.Fence
	checked []vk.Fence
}

func newFenceCache(dv *Device) *fenceCache {
	return &fenceCache{dv: dv}
}

// Acquire returns a fence in the unsignalled state.
func (c *fenceCache) Acquire() (vk.Fence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var f vk.Fence
	if n := len(c.free); n > 0 {
		f = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		if ret := vk.CreateFence(c.dv.Device, &vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}, nil, &f); ret != vk.Success {
			return vk.NullFence, newErr(DeviceError, "fenceCache.Acquire", "", vkErr("vkCreateFence", ret))
		}
	}
	c.checked = append(c.checked, f)
	return f, nil
}

// Release resets f and returns it to the free list.
func (c *fenceCache) Release(f vk.Fence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cf := range c.checked {
		if cf == f {
			c.checked = append(c.checked[:i], c.checked[i+1:]...)
			break
		}
	}
	vk.ResetFences(c.dv.Device, 1, []vk.Fence{f})
	c.free = append(c.free, f)
}

// Wait blocks (up to timeoutNs) until f signals, returning (true, nil).
// A timeout reports (false, nil) rather than an error, distinct from a
// genuine device failure, so a caller can tell "not done yet" apart
// from something actually having gone wrong.
func (c *fenceCache) Wait(f vk.Fence, timeoutNs uint64) (bool, error) {
	ret := vk.WaitForFences(c.dv.Device, 1, []vk.Fence{f}, vk.True, timeoutNs)
	if ret == vk.Timeout {
		return false, nil
	}
	if err := vkErr("vkWaitForFences", ret); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy waits every checked-out fence idle, then destroys every
// fence the cache ever created.
func (c *fenceCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.checked) > 0 {
		vk.WaitForFences(c.dv.Device, uint32(len(c.checked)), c.checked, vk.True, ^uint64(0))
	}
	for _, f := range append(c.free, c.checked...) {
		vk.DestroyFence(c.dv.Device, f, nil)
	}
	c.free, c.checked = nil, nil
}
