// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	vk "github.com/goki/vulkan"
)

// SamplerModes control how a sampler handles texture coordinates that
// fall outside [0,1].
type SamplerModes int32 //enums:enum

const (
	Repeat SamplerModes = iota
	MirroredRepeat
	ClampToEdge
	ClampToBorder
	MirrorClampToEdge
)

var vulkanSamplerModes = map[SamplerModes]vk.SamplerAddressMode{
	Repeat:            vk.SamplerAddressModeRepeat,
	MirroredRepeat:    vk.SamplerAddressModeMirroredRepeat,
	ClampToEdge:       vk.SamplerAddressModeClampToEdge,
	ClampToBorder:     vk.SamplerAddressModeClampToBorder,
	MirrorClampToEdge: vk.SamplerAddressModeMirrorClampToEdge,
}

func (sm SamplerModes) vkMode() vk.SamplerAddressMode { return vulkanSamplerModes[sm] }

// BorderColors names the fixed border colors a ClampToBorder sampler
// can use.
type BorderColors int32 //enums:enum -trim-prefix Border

const (
	BorderTrans BorderColors = iota
	BorderBlack
	BorderWhite
)

var vulkanBorderColors = map[BorderColors]vk.BorderColor{
	BorderTrans: vk.BorderColorIntTransparentBlack,
	BorderBlack: vk.BorderColorIntOpaqueBlack,
	BorderWhite: vk.BorderColorIntOpaqueWhite,
}

func (bc BorderColors) vkColor() vk.BorderColor { return vulkanBorderColors[bc] }

// SamplerDesc is the cache key for a sampler: two descriptions that
// compare equal always produce the same cached sampler, per the
// structural-hash dedup every cacheable kind shares.
type SamplerDesc struct {
	UMode, VMode, WMode SamplerModes
	Border              BorderColors
	Anisotropy          bool
	Linear              bool
}

func (d SamplerDesc) cacheKey() string {
	var b [6]byte
	b[0] = byte(d.UMode)
	b[1] = byte(d.VMode)
	b[2] = byte(d.WMode)
	b[3] = byte(d.Border)
	if d.Anisotropy {
		b[4] = 1
	}
	if d.Linear {
		b[5] = 1
	}
	return "sampler:" + string(b[:])
}

type samplerResource struct {
	desc    SamplerDesc
	sampler vk.Sampler
}

func createSampler(gp *GPU, dv *Device, desc SamplerDesc) (*samplerResource, error) {
	filter := vk.FilterNearest
	mipMode := vk.SamplerMipmapModeNearest
	if desc.Linear {
		filter = vk.FilterLinear
		mipMode = vk.SamplerMipmapModeLinear
	}
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            desc.UMode.vkMode(),
		AddressModeV:            desc.VMode.vkMode(),
		AddressModeW:            desc.WMode.vkMode(),
		BorderColor:             desc.Border.vkColor(),
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              mipMode,
	}
	if desc.Anisotropy {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = gp.Properties.Limits.MaxSamplerAnisotropy
	}
	var samp vk.Sampler
	if ret := vk.CreateSampler(dv.Device, &info, nil, &samp); ret != vk.Success {
		return nil, newErr(DeviceError, "createSampler", "", vkErr("vkCreateSampler", ret))
	}
	return &samplerResource{desc: desc, sampler: samp}, nil
}

func destroySampler(dv *Device, sr *samplerResource) {
	if sr == nil || sr.sampler == vk.NullSampler {
		return
	}
	vk.DestroySampler(dv.Device, sr.sampler, nil)
	sr.sampler = vk.NullSampler
}
