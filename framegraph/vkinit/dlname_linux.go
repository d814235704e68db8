// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && cgo

package vkinit

// DlName is the default Vulkan loader name on this platform.
const DlName = "libvulkan.so.1"
