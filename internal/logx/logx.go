// Copyright (c) 2022, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logx provides leveled, filterable logging for the framegraph
// core, in place of the standard library's unconditional [log] package.
package logx

import (
	"fmt"
	"log/slog"
)

// UserLevel is the minimum level that will be printed. Messages below
// this level are dropped without formatting their arguments.
var UserLevel = slog.LevelInfo

// Print is equivalent to [fmt.Print], gated by [UserLevel].
func Print(level slog.Level, a ...any) {
	if UserLevel > level {
		return
	}
	fmt.Print(a...)
}

// Printf is equivalent to [fmt.Printf], gated by [UserLevel].
func Printf(level slog.Level, format string, a ...any) {
	if UserLevel > level {
		return
	}
	fmt.Printf(format, a...)
}

// Error is equivalent to [Printf] at [slog.LevelError].
func Error(format string, a ...any) {
	Printf(slog.LevelError, format+"\n", a...)
}

// Warn is equivalent to [Printf] at [slog.LevelWarn].
func Warn(format string, a ...any) {
	Printf(slog.LevelWarn, format+"\n", a...)
}

// Debug is equivalent to [Printf] at [slog.LevelDebug].
func Debug(format string, a ...any) {
	Printf(slog.LevelDebug, format+"\n", a...)
}
