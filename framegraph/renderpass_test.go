// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vk "github.com/goki/vulkan"
)

func colorPass(image RawID, loadOp vk.AttachmentLoadOp) *LogicalRenderPass {
	return &LogicalRenderPass{
		ColorAttachments: []Attachment{{Image: image, Format: vk.FormatR8g8b8a8Unorm, Samples: vk.SampleCount1Bit, LoadOp: loadOp}},
	}
}

func TestCompatibleRejectsDifferentAttachmentCounts(t *testing.T) {
	a := colorPass(newResourceID(1, 1), vk.AttachmentLoadOpClear)
	b := &LogicalRenderPass{ColorAttachments: append(a.ColorAttachments, a.ColorAttachments[0])}
	assert.False(t, a.compatible(b))
}

func TestCompatibleRejectsMismatchedSamplesOrFormat(t *testing.T) {
	a := colorPass(newResourceID(1, 1), vk.AttachmentLoadOpClear)
	b := colorPass(newResourceID(2, 1), vk.AttachmentLoadOpClear)
	b.ColorAttachments[0].Format = vk.FormatR8g8b8a8Srgb
	assert.False(t, a.compatible(b))
}

func TestCompatibleRejectsSameImageWithLoadOpLoad(t *testing.T) {
	img := newResourceID(1, 1)
	a := colorPass(img, vk.AttachmentLoadOpClear)
	b := colorPass(img, vk.AttachmentLoadOpLoad)
	assert.False(t, a.compatible(b), "second pass reading back the first's output needs an explicit dependency, not fusion")
}

func TestCompatibleAcceptsDistinctImagesSameShape(t *testing.T) {
	a := colorPass(newResourceID(1, 1), vk.AttachmentLoadOpClear)
	b := colorPass(newResourceID(2, 1), vk.AttachmentLoadOpClear)
	assert.True(t, a.compatible(b))
}

func TestCompatibleRejectsDepthAttachmentPresenceMismatch(t *testing.T) {
	a := colorPass(newResourceID(1, 1), vk.AttachmentLoadOpClear)
	b := colorPass(newResourceID(2, 1), vk.AttachmentLoadOpClear)
	b.DepthAttachment = &Attachment{Format: vk.FormatD32Sfloat, Samples: vk.SampleCount1Bit}
	assert.False(t, a.compatible(b))
}

func TestCompatibleRejectsNonOverlappingViewports(t *testing.T) {
	a := colorPass(newResourceID(1, 1), vk.AttachmentLoadOpClear)
	a.Viewports = []vk.Viewport{{X: 0, Y: 0, Width: 100, Height: 100}}
	b := colorPass(newResourceID(2, 1), vk.AttachmentLoadOpClear)
	b.Viewports = []vk.Viewport{{X: 200, Y: 200, Width: 100, Height: 100}}
	assert.False(t, a.compatible(b))
}

func TestViewportsOverlapTreatsEmptyAsWildcard(t *testing.T) {
	assert.True(t, viewportsOverlap(nil, []vk.Viewport{{X: 0, Y: 0, Width: 10, Height: 10}}))
	assert.True(t, viewportsOverlap([]vk.Viewport{{X: 0, Y: 0, Width: 10, Height: 10}}, nil))
}

func TestMergePassesGroupsConsecutiveCompatiblePasses(t *testing.T) {
	a := colorPass(newResourceID(1, 1), vk.AttachmentLoadOpClear)
	b := colorPass(newResourceID(2, 1), vk.AttachmentLoadOpClear)
	c := colorPass(newResourceID(2, 1), vk.AttachmentLoadOpLoad) // same image as b, forces a break
	groups := mergePasses([]*LogicalRenderPass{a, b, c})
	require.Len(t, groups, 2)
	assert.Equal(t, []*LogicalRenderPass{a, b}, groups[0])
	assert.Equal(t, []*LogicalRenderPass{c}, groups[1])
}

func TestMergePassesSingletonWhenNothingCompatible(t *testing.T) {
	img := newResourceID(1, 1)
	a := colorPass(img, vk.AttachmentLoadOpClear)
	b := colorPass(img, vk.AttachmentLoadOpLoad)
	c := colorPass(img, vk.AttachmentLoadOpLoad)
	groups := mergePasses([]*LogicalRenderPass{a, b, c})
	require.Len(t, groups, 3)
	for i, g := range groups {
		assert.Len(t, g, 1, "group %d", i)
	}
}

func TestMergePassesEmptyInputYieldsNoGroups(t *testing.T) {
	assert.Empty(t, mergePasses(nil))
}
