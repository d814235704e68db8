// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package framegraph

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/ayberkgerey5/framegraphx/internal/logx"
)

// ErrorClass categorizes a failure per the error taxonomy: configuration
// errors, resource exhaustion, device errors, and contract violations.
type ErrorClass int32 //enums:enum

const (
	// ConfigError is a bad descriptor, missing usage flag, or unknown
	// format, caught at declaration time.
	ConfigError ErrorClass = iota

	// ExhaustionError is a slot table full, descriptor pool empty, or
	// staging ring out of space condition.
	ExhaustionError

	// DeviceError is a non-success Vulkan result from create/submit/wait.
	DeviceError

	// ContractError is use-after-release via a stale generation, or
	// writing through a read-only descriptor.
	ContractError
)

// Error is the error type returned by every public operation in this
// package. Op names the failing operation, Resource optionally names
// the resource or task involved, and Err carries the underlying cause
// (often a wrapped vk.Result).
type Error struct {
	Class    ErrorClass
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("framegraph: %s: %s: %v", e.Op, e.Resource, e.Err)
	}
	return fmt.Sprintf("framegraph: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(class ErrorClass, op, resource string, err error) *Error {
	return &Error{Class: class, Op: op, Resource: resource, Err: err}
}

// vkErr wraps a non-success vk.Result as a DeviceError, or returns nil
// if ret indicates success.
func vkErr(op string, ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return newErr(DeviceError, op, "", fmt.Errorf("vulkan result %d", ret))
}

// logOrPanic is the debug/release split the error taxonomy requires for
// contract violations: abort with a named diagnostic in debug builds,
// log at error severity and return the zero value in release.
func logOrPanic(op, resource string, err error) {
	e := newErr(ContractError, op, resource, err)
	if Debug {
		panic(e)
	}
	logx.Error("%v", e)
}

// logConfigError reports a configuration error: always logged, never
// fatal, since it is caught at declaration time and only fails the
// one operation.
func logConfigError(op, resource string, err error) *Error {
	e := newErr(ConfigError, op, resource, err)
	logx.Error("%v", e)
	return e
}
