// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// QueueKind names the three logical queue roles the batch submission
// engine schedules onto.
type QueueKind int32 //enums:enum

const (
	GraphicsQueue QueueKind = iota
	AsyncComputeQueue
	AsyncTransferQueue
	queueKindN
)

// QueueRecord describes one caller-supplied device queue, as part of
// DeviceInfo.
type QueueRecord struct {
	Queue       vk.Queue
	FamilyIndex uint32
	Capability  vk.QueueFlagBits
	DebugName   string
}

// DeviceInfo is the caller-supplied Vulkan bootstrap: the core never
// creates a VkInstance, VkPhysicalDevice, or VkDevice itself. The
// caller is responsible for enabling whatever instance/device
// extensions and features this package's resource kinds require
// (ray tracing, mesh shaders, etc.) before handing the device over.
type DeviceInfo struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	Queues         []QueueRecord
}

// PipelineDesc is the subset of a pipeline's declared state a
// PipelineCompiler needs to produce shader modules: the shader source
// identifiers and the target color/depth attachment formats it will
// be used with.
type PipelineDesc struct {
	Name            string
	ShaderStages    map[vk.ShaderStageFlagBits]string // stage -> source identifier
	ColorFormats    []vk.Format
	DepthFormat     vk.Format
	HasRayTracing   bool
	HasMeshShaders  bool
	PushConstantSz  int
	VertexBindings  []VertexBinding
	VertexAttribs   []VertexAttrib
}

// VertexBinding and VertexAttrib describe the pipeline's declared
// vertex-input state. They are not used to map VertexIDs onto binding
// slots; the recorder binds no vertex buffers.
type VertexBinding struct {
	Binding uint32
	Stride  uint32
	PerInst bool
}

type VertexAttrib struct {
	Location uint32
	Binding  uint32
	Format   vk.Format
	Offset   uint32
}

// CompiledShaders is what a successful PipelineCompiler.Compile call
// produces: one VkShaderModule per stage.
type CompiledShaders struct {
	Modules map[vk.ShaderStageFlagBits]vk.ShaderModule
}

// PipelineCompiler is an external collaborator the resource manager
// tries in registration order when a pipeline is created. The first compiler that accepts a
// PipelineDesc wins. Compile results are not cached: the winning
// compiler runs again on every pipeline creation.
type PipelineCompiler interface {
	// Name identifies the compiler for logging/diagnostics.
	Name() string
	// Accepts reports whether this compiler can handle desc at all
	// (e.g. it declines ray tracing or mesh shader descriptions it
	// does not support) before Compile is attempted.
	Accepts(desc PipelineDesc) bool
	// Compile produces shader modules for desc, targeting targetFormat.
	Compile(desc PipelineDesc, targetFormat vk.Format) (CompiledShaders, error)
}

// Surface is the minimum window/surface capability the core consumes;
// window and surface creation themselves are out of scope and are implemented by the caller.
type Surface interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

// SwapchainCreateInfo is externally specified.
// ResourceManager.CreateSwapchain takes the first listed (format,
// color space) and present mode without querying the surface, and
// falls back to BGRA8 unorm / FIFO / opaque composite only when the
// corresponding field is empty or zero.
type SwapchainCreateInfo struct {
	Surface            vk.Surface
	Size               [2]uint32
	DesiredImageCount  uint32
	AcceptableFormats  []vk.SurfaceFormat
	AcceptablePresents []vk.PresentMode
	RequiredUsage      vk.ImageUsageFlagBits
	OptionalUsage      vk.ImageUsageFlagBits
	CompositeAlpha     vk.CompositeAlphaFlagBits
	PreTransform       vk.SurfaceTransformFlagBits
}

// ShaderDebugCallback is the signature of a per-shader-execution
// debug callback. Nothing in this package invokes it: completing a
// command buffer recorded with debug tracing runs no callback.
type ShaderDebugCallback func(taskName, shaderName string, stages vk.ShaderStageFlagBits, output []string)
