// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	vk "github.com/goki/vulkan"
)

func newTestResourceManagerForPipelines() *ResourceManager {
	return &ResourceManager{
		pipelines:  &slotTable[pipelineResource]{},
		setLayouts: &slotTable[descriptorSetLayoutResource]{},
	}
}

func TestInitializePipelineResourcesScaffoldsBindingsFromLayout(t *testing.T) {
	rm := newTestResourceManagerForPipelines()

	layoutDesc := DescriptorSetLayoutDesc{Bindings: []DescriptorBinding{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer},
		{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler},
	}}
	layoutID := rm.setLayouts.alloc(descriptorSetLayoutResource{desc: layoutDesc}, "set0")
	pipelineID := rm.pipelines.alloc(pipelineResource{setLayouts: []RawID{layoutID}}, "pipe")

	out, gotLayout, err := rm.InitializePipelineResources(pipelineID, 0)
	require.NoError(t, err)
	require.Equal(t, layoutID, gotLayout)
	require.Len(t, out, 2)
	require.Equal(t, uint32(0), out[0].Binding)
	require.Equal(t, uint32(1), out[1].Binding)
	require.Equal(t, RawID(0), out[0].Buffer, "scaffold leaves resource fields unset for the caller to fill in")
}

func TestInitializePipelineResourcesRejectsOutOfRangeSet(t *testing.T) {
	rm := newTestResourceManagerForPipelines()
	pipelineID := rm.pipelines.alloc(pipelineResource{}, "pipe")

	_, _, err := rm.InitializePipelineResources(pipelineID, 0)
	require.Error(t, err)
}

func TestInitializePipelineResourcesRejectsStalePipeline(t *testing.T) {
	rm := newTestResourceManagerForPipelines()
	_, _, err := rm.InitializePipelineResources(InvalidID, 0)
	require.Error(t, err)
}
