// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package framegraph implements the core of a Vulkan-backed render
framegraph: a generational resource manager, a per-command-buffer
local resource tracker that emits pipeline barriers just in time, a
task graph and render-pass builder, a multi-queue batch submission
engine, and a per-frame staging allocator.

It uses the https://github.com/goki/vulkan Go bindings directly, the
same way the vgpu package this core descends from does, rather than
hiding Vulkan behind a second abstraction layer.

The package never creates a VkInstance or VkDevice itself; the caller
supplies both (see DeviceInfo) so that window and surface creation
remain entirely outside this package.
*/
package framegraph

// Debug enables verbose diagnostic printing and turns contract
// violations (stale-handle use, illegal batch transitions) into
// panics instead of logged-and-ignored errors. Mirrors vgpu.Debug.
var Debug = false
