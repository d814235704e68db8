// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"
)

////////////////////////////////////////////////////////////////////////
// Descriptor set layouts (cacheable)

// DescriptorBinding is one binding slot of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    vk.DescriptorType
	Count   uint32
	Stages  vk.ShaderStageFlagBits
}

// DescriptorSetLayoutDesc is the create_descriptor_set_layout
// descriptor: an ordered list of binding slots.
type DescriptorSetLayoutDesc struct {
	Bindings []DescriptorBinding
}

func (d DescriptorSetLayoutDesc) cacheKey() string {
	var sb strings.Builder
	for _, b := range d.Bindings {
		fmt.Fprintf(&sb, "%d:%d:%d:%d|", b.Binding, b.Type, b.Count, b.Stages)
	}
	return sb.String()
}

type descriptorSetLayoutResource struct {
	desc   DescriptorSetLayoutDesc
	layout vk.DescriptorSetLayout
}

func createDescriptorSetLayout(dv *Device, desc DescriptorSetLayoutDesc) (*descriptorSetLayoutResource, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	for i, b := range desc.Bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(dv.Device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &layout)
	if ret != vk.Success {
		return nil, newErr(DeviceError, "createDescriptorSetLayout", "", vkErr("vkCreateDescriptorSetLayout", ret))
	}
	return &descriptorSetLayoutResource{desc: desc, layout: layout}, nil
}

func destroyDescriptorSetLayout(dv *Device, r *descriptorSetLayoutResource) {
	if r == nil || r.layout == vk.NullDescriptorSetLayout {
		return
	}
	vk.DestroyDescriptorSetLayout(dv.Device, r.layout, nil)
	r.layout = vk.NullDescriptorSetLayout
}

////////////////////////////////////////////////////////////////////////
// Pipeline-resource sets (cacheable): a materialized VkDescriptorSet
// bound to concrete buffer/image/sampler handles.

// PipelineResourceBinding binds one descriptor slot to a concrete
// resource.
type PipelineResourceBinding struct {
	Binding     uint32
	Buffer      RawID
	BufferOffset uint64
	BufferRange  uint64
	Image       RawID
	Sampler     RawID
	ImageLayout vk.ImageLayout
}

// PipelineResourceSetDesc is the create_pipeline_resource_set
// descriptor.
type PipelineResourceSetDesc struct {
	Layout   RawID
	Bindings []PipelineResourceBinding
}

func (d PipelineResourceSetDesc) cacheKey() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", uint64(d.Layout))
	for _, b := range d.Bindings {
		fmt.Fprintf(&sb, "%d:%d:%d:%d:%d:%d:%d|", b.Binding, uint64(b.Buffer), b.BufferOffset, b.BufferRange, uint64(b.Image), uint64(b.Sampler), b.ImageLayout)
	}
	return sb.String()
}

type pipelineResourceSetResource struct {
	desc PipelineResourceSetDesc
	pool vk.DescriptorPool
	set  vk.DescriptorSet
}

func createPipelineResourceSet(rm *ResourceManager, desc PipelineResourceSetDesc) (*pipelineResourceSetResource, error) {
	lr, ok := rm.setLayouts.get(desc.Layout)
	if !ok {
		return nil, newErr(ContractError, "createPipelineResourceSet", "", errStaleHandle)
	}

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(lr.desc.Bindings))
	for _, b := range lr.desc.Bindings {
		count := b.Count
		if count == 0 {
			count = 1
		}
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: b.Type, DescriptorCount: count})
	}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(rm.dv.Device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}, nil, &pool)
	if ret != vk.Success {
		return nil, newErr(DeviceError, "createPipelineResourceSet", "", vkErr("vkCreateDescriptorPool", ret))
	}

	sets := make([]vk.DescriptorSet, 1)
	ret = vk.AllocateDescriptorSets(rm.dv.Device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{lr.layout},
	}, sets)
	if ret != vk.Success {
		vk.DestroyDescriptorPool(rm.dv.Device, pool, nil)
		return nil, newErr(DeviceError, "createPipelineResourceSet", "", vkErr("vkAllocateDescriptorSets", ret))
	}
	set := sets[0]

	writes := make([]vk.WriteDescriptorSet, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		bindingDesc, found := findBinding(lr.desc, b.Binding)
		if !found {
			continue
		}
		w := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      b.Binding,
			DescriptorCount: 1,
			DescriptorType:  bindingDesc.Type,
		}
		switch bindingDesc.Type {
		case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer, vk.DescriptorTypeUniformBufferDynamic, vk.DescriptorTypeStorageBufferDynamic:
			buf, ok := rm.vkBuffer(b.Buffer)
			if !ok {
				continue
			}
			rng := vk.DeviceSize(b.BufferRange)
			if rng == 0 {
				rng = vk.WholeSize
			}
			w.PBufferInfo = []vk.DescriptorBufferInfo{{Buffer: buf, Offset: vk.DeviceSize(b.BufferOffset), Range: rng}}
		case vk.DescriptorTypeCombinedImageSampler:
			_, view, ok := rm.vkImage(b.Image)
			if !ok {
				continue
			}
			sampler, _ := rm.vkSampler(b.Sampler)
			w.PImageInfo = []vk.DescriptorImageInfo{{ImageView: view, Sampler: sampler, ImageLayout: b.ImageLayout}}
		case vk.DescriptorTypeSampledImage, vk.DescriptorTypeStorageImage:
			_, view, ok := rm.vkImage(b.Image)
			if !ok {
				continue
			}
			w.PImageInfo = []vk.DescriptorImageInfo{{ImageView: view, ImageLayout: b.ImageLayout}}
		case vk.DescriptorTypeSampler:
			sampler, ok := rm.vkSampler(b.Sampler)
			if !ok {
				continue
			}
			w.PImageInfo = []vk.DescriptorImageInfo{{Sampler: sampler}}
		}
		writes = append(writes, w)
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(rm.dv.Device, uint32(len(writes)), writes, 0, nil)
	}
	return &pipelineResourceSetResource{desc: desc, pool: pool, set: set}, nil
}

// InitializePipelineResources introspects pipeline's set-th descriptor-
// set layout and returns a scaffold binding array -- one
// PipelineResourceBinding per declared slot, Binding populated and
// every resource field left zero -- for the caller to fill in before
// passing it back to CreatePipelineResourceSet. setIdx indexes
// GraphicsPipelineDesc.SetLayouts in creation order.
func (rm *ResourceManager) InitializePipelineResources(pipeline RawID, setIdx int) ([]PipelineResourceBinding, RawID, error) {
	pr, ok := rm.pipelines.get(pipeline)
	if !ok {
		return nil, InvalidID, newErr(ContractError, "InitializePipelineResources", "", errStaleHandle)
	}
	if setIdx < 0 || setIdx >= len(pr.setLayouts) {
		return nil, InvalidID, newErr(ConfigError, "InitializePipelineResources", "", errSetIndexOutOfRange)
	}
	layoutID := pr.setLayouts[setIdx]
	lr, ok := rm.setLayouts.get(layoutID)
	if !ok {
		return nil, InvalidID, newErr(ContractError, "InitializePipelineResources", "", errStaleHandle)
	}
	out := make([]PipelineResourceBinding, len(lr.desc.Bindings))
	for i, b := range lr.desc.Bindings {
		out[i] = PipelineResourceBinding{Binding: b.Binding}
	}
	return out, layoutID, nil
}

func findBinding(desc DescriptorSetLayoutDesc, binding uint32) (DescriptorBinding, bool) {
	for _, b := range desc.Bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return DescriptorBinding{}, false
}

func destroyPipelineResourceSet(dv *Device, r *pipelineResourceSetResource) {
	if r == nil || r.pool == vk.NullDescriptorPool {
		return
	}
	vk.DestroyDescriptorPool(dv.Device, r.pool, nil)
	r.pool = vk.NullDescriptorPool
}

////////////////////////////////////////////////////////////////////////
// Pipelines

// GraphicsPipelineDesc is the create_pipeline descriptor for a
// rasterization pipeline: the shader-compile inputs any registered
// PipelineCompiler needs, plus fixed-function state and the
// descriptor-set layouts its shaders bind against. Pipelines target a
// set of attachment formats directly (via dynamic rendering) rather
// than a concrete VkRenderPass, so the same pipeline is reusable across
// any LogicalRenderPass realization sharing those formats.
type GraphicsPipelineDesc struct {
	Shader         PipelineDesc
	SetLayouts     []RawID
	Topology       vk.PrimitiveTopology
	CullMode       vk.CullModeFlagBits
	FrontFace      vk.FrontFace
	DepthTest      bool
	DepthWrite     bool
	DepthCompareOp vk.CompareOp
	Blend          bool
}

type pipelineResource struct {
	layout     vk.PipelineLayout
	pipeline   vk.Pipeline
	bindPoint  vk.PipelineBindPoint
	setLayouts []RawID
}

// CreateGraphicsPipeline tries every registered PipelineCompiler in
// order, compiling desc against its target color/depth formats, then
// builds a VkPipelineLayout from the supplied descriptor-set layouts
// and a dynamic-rendering-targeting VkPipeline.
func (rm *ResourceManager) CreateGraphicsPipeline(desc GraphicsPipelineDesc, debugName string) (OwnedID, error) {
	compiled, compiler, err := rm.compile(desc.Shader)
	if err != nil {
		return InvalidID, logConfigError("CreateGraphicsPipeline", debugName, err)
	}

	setLayouts := make([]vk.DescriptorSetLayout, 0, len(desc.SetLayouts))
	for _, id := range desc.SetLayouts {
		lr, ok := rm.setLayouts.get(id)
		if !ok {
			return InvalidID, logConfigError("CreateGraphicsPipeline", debugName, errStaleHandle)
		}
		setLayouts = append(setLayouts, lr.layout)
	}

	var layout vk.PipelineLayout
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if desc.Shader.PushConstantSz > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageAllBit),
			Size:       uint32(desc.Shader.PushConstantSz),
		}}
	}
	if ret := vk.CreatePipelineLayout(rm.dv.Device, &layoutInfo, nil, &layout); ret != vk.Success {
		return InvalidID, logConfigError("CreateGraphicsPipeline", debugName, vkErr("vkCreatePipelineLayout", ret))
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(compiled.Modules))
	for stage, mod := range compiled.Modules {
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: mod,
			PName:  "main\x00",
		})
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.Shader.VertexBindings))
	for i, b := range desc.Shader.VertexBindings {
		rate := vk.VertexInputRateVertex
		if b.PerInst {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: rate}
	}
	attribs := make([]vk.VertexInputAttributeDescription, len(desc.Shader.VertexAttribs))
	for i, a := range desc.Shader.VertexAttribs {
		attribs[i] = vk.VertexInputAttributeDescription{Location: a.Location, Binding: a.Binding, Format: a.Format, Offset: a.Offset}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attribs)),
		PVertexAttributeDescriptions:    attribs,
	}
	topology := desc.Topology
	if topology == 0 {
		topology = vk.PrimitiveTopologyTriangleList
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{SType: vk.StructureTypePipelineInputAssemblyStateCreateInfo, Topology: topology}
	viewportState := vk.PipelineViewportStateCreateInfo{SType: vk.StructureTypePipelineViewportStateCreateInfo, ViewportCount: 1, ScissorCount: 1}
	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:     vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(desc.CullMode),
		FrontFace:   desc.FrontFace,
		LineWidth:   1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{SType: vk.StructureTypePipelineMultisampleStateCreateInfo, RasterizationSamples: vk.SampleCount1Bit}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(desc.DepthTest),
		DepthWriteEnable: vkBool(desc.DepthWrite),
		DepthCompareOp:   desc.DepthCompareOp,
	}
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.Shader.ColorFormats))
	for i := range blendAttachments {
		ba := vk.PipelineColorBlendAttachmentState{ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)}
		if desc.Blend {
			ba.BlendEnable = vk.True
			ba.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			ba.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			ba.ColorBlendOp = vk.BlendOpAdd
			ba.SrcAlphaBlendFactor = vk.BlendFactorOne
			ba.DstAlphaBlendFactor = vk.BlendFactorZero
			ba.AlphaBlendOp = vk.BlendOpAdd
		}
		blendAttachments[i] = ba
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	renderingInfo := vk.PipelineRenderingCreateInfo{
		SType:                vk.StructureTypePipelineRenderingCreateInfo,
		ColorAttachmentCount: uint32(len(desc.Shader.ColorFormats)),
		PColorAttachmentFormats: desc.Shader.ColorFormats,
		DepthAttachmentFormat:   desc.Shader.DepthFormat,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		PNext:                unsafe.Pointer(&renderingInfo),
		StageCount:           uint32(len(stages)),
		PStages:              stages,
		PVertexInputState:    &vertexInput,
		PInputAssemblyState:  &inputAssembly,
		PViewportState:       &viewportState,
		PRasterizationState:  &rasterization,
		PMultisampleState:    &multisample,
		PDepthStencilState:   &depthStencil,
		PColorBlendState:     &colorBlend,
		PDynamicState:        &dynamicState,
		Layout:               layout,
		BasePipelineIndex:    -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(rm.dv.Device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if ret != vk.Success {
		vk.DestroyPipelineLayout(rm.dv.Device, layout, nil)
		return InvalidID, logConfigError("CreateGraphicsPipeline", debugName, vkErr("vkCreateGraphicsPipelines", ret))
	}
	_ = compiler

	pr := pipelineResource{layout: layout, pipeline: pipelines[0], bindPoint: vk.PipelineBindPointGraphics, setLayouts: desc.SetLayouts}
	return rm.pipelines.alloc(pr, debugName), nil
}

func (rm *ResourceManager) compile(desc PipelineDesc) (CompiledShaders, PipelineCompiler, error) {
	rm.compilersMu.Lock()
	compilers := append([]PipelineCompiler{}, rm.compilers...)
	rm.compilersMu.Unlock()
	for _, c := range compilers {
		if !c.Accepts(desc) {
			continue
		}
		target := desc.DepthFormat
		if len(desc.ColorFormats) > 0 {
			target = desc.ColorFormats[0]
		}
		shaders, err := c.Compile(desc, target)
		if err != nil {
			continue
		}
		return shaders, c, nil
	}
	return CompiledShaders{}, nil, errNoPipelineCompiler
}

func (rm *ResourceManager) ReleasePipeline(id OwnedID) {
	count, ok := rm.pipelines.release(id)
	if !ok {
		logOrPanic("ReleasePipeline", "", errStaleHandle)
		return
	}
	if count > 0 {
		return
	}
	pr, _ := rm.pipelines.get(id)
	if pr != nil {
		vk.DestroyPipeline(rm.dv.Device, pr.pipeline, nil)
		vk.DestroyPipelineLayout(rm.dv.Device, pr.layout, nil)
	}
	rm.pipelines.free(id)
	rm.fireOnRelease(id)
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

const errNoPipelineCompiler errSentinel = "no registered compiler accepted this pipeline description"
const errSetIndexOutOfRange errSentinel = "descriptor-set index out of range for this pipeline's layout"
