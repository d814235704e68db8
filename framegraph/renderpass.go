// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// Attachment describes one colour or depth-stencil attachment of a
// logical render pass.
type Attachment struct {
	Image      RawID
	Format     vk.Format
	Samples    vk.SampleCountFlagBits
	LoadOp     vk.AttachmentLoadOp
	StoreOp    vk.AttachmentStoreOp
	ClearColor vk.ClearColorValue
	IsDepth    bool
	ClearDepth vk.ClearDepthStencilValue
	FinalLayout vk.ImageLayout
}

// LogicalRenderPass is a declared collection of attachments, a
// viewport/scissor array, and the draw tasks recorded inside it. Two
// adjacent logical render passes may be recorded inside one
// dynamic-rendering region (one CmdBeginRendering/CmdEndRendering
// pair) when compatible() reports true.
type LogicalRenderPass struct {
	Name            string
	ColorAttachments []Attachment
	DepthAttachment  *Attachment
	ShadingRateImage RawID
	Viewports        []vk.Viewport
	Scissors         []vk.Rect2D
	Draws            []*TaskNode
}

// compatible reports whether b may be fused onto a inside the same
// rendering region instead of ending a's region and beginning a new
// one: conservative by construction, any doubt returns false so the
// two passes are recorded separately.
func (a *LogicalRenderPass) compatible(b *LogicalRenderPass) bool {
	if len(a.ColorAttachments) != len(b.ColorAttachments) {
		return false
	}
	for i := range a.ColorAttachments {
		ca, cb := a.ColorAttachments[i], b.ColorAttachments[i]
		if ca.Samples != cb.Samples || ca.Format != cb.Format {
			return false
		}
		// A subsequent pass reading back what a previous pass
		// wrote needs an explicit dependency the merger does not
		// synthesize; only fuse when images plainly differ or when
		// the second pass's load op does not depend on the first's
		// contents (Clear/DontCare).
		if ca.Image == cb.Image && cb.LoadOp == vk.AttachmentLoadOpLoad {
			return false
		}
	}
	if (a.DepthAttachment == nil) != (b.DepthAttachment == nil) {
		return false
	}
	if a.DepthAttachment != nil {
		if a.DepthAttachment.Samples != b.DepthAttachment.Samples || a.DepthAttachment.Format != b.DepthAttachment.Format {
			return false
		}
	}
	if !viewportsOverlap(a.Viewports, b.Viewports) {
		return false
	}
	return true
}

func viewportsOverlap(a, b []vk.Viewport) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, va := range a {
		for _, vb := range b {
			if va.X < vb.X+vb.Width && vb.X < va.X+va.Width &&
				va.Y < vb.Y+vb.Height && vb.Y < va.Y+va.Height {
				return true
			}
		}
	}
	return false
}

// mergePasses groups a sequence of logical render passes encountered
// in traversal order into fusion groups: consecutive passes are
// merged while compatible(), breaking into a new group whenever
// compatibility fails or a non-render-pass task appears between them
// (tracked by the caller via contiguous slicing).
func mergePasses(passes []*LogicalRenderPass) [][]*LogicalRenderPass {
	var groups [][]*LogicalRenderPass
	var cur []*LogicalRenderPass
	for _, p := range passes {
		if len(cur) == 0 {
			cur = []*LogicalRenderPass{p}
			continue
		}
		if cur[len(cur)-1].compatible(p) {
			cur = append(cur, p)
		} else {
			groups = append(groups, cur)
			cur = []*LogicalRenderPass{p}
		}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}
