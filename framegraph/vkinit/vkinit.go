// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build (linux && cgo) || (darwin && cgo) || (freebsd && cgo)

// Package vkinit handles loading and initialization of the platform
// Vulkan loader, without any dependency on a windowing library.
package vkinit

// #cgo LDFLAGS: -ldl
// #include <stdlib.h>
// #include <dlfcn.h>
import "C"
import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// IsLoaded is true once [LoadVulkan] has succeeded.
var IsLoaded = false

// LoadVulkan loads and initializes the Vulkan library, using the
// default loader name for the current platform.
func LoadVulkan() error {
	if IsLoaded {
		return nil
	}
	clibnm := C.CString(DlName)
	defer C.free(unsafe.Pointer(clibnm))
	handle := C.dlopen(clibnm, C.RTLD_LAZY)
	if handle == nil {
		return fmt.Errorf("vkinit: vulkan loader %q not found", DlName)
	}
	cpAddr := C.CString("vkGetInstanceProcAddr")
	defer C.free(unsafe.Pointer(cpAddr))
	pAddr := C.dlsym(handle, cpAddr)
	if pAddr == nil {
		return fmt.Errorf("vkinit: vkGetInstanceProcAddr not found in loader")
	}
	vk.SetGetInstanceProcAddr(pAddr)
	IsLoaded = true
	return vk.Init()
}
