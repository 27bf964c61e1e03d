// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbolizer maps return addresses captured by pkg/stacktrace to
// functions, source files and lines, including chains of inlined calls.
//
// Binaries are parsed with debug/elf and debug/dwarf (falling back to the Go
// pclntab when DWARF is stripped) and cached in an ObjectCache that the caller
// owns. A Resolver combines the cache with a loader.Loader:
//
//	cache := symbolizer.NewObjectCache()
//	defer cache.Close()
//	r := symbolizer.NewResolver(cache)
//	for frame := range r.ResolveTrace(stacktrace.Capture(32, 1), false) {
//		...
//	}
package symbolizer

import (
	"github.com/google/stacktrace/pkg/stacktrace"
	"github.com/ianlancetaylor/demangle"
)

// SourceLoc is a single point in source code.
type SourceLoc struct {
	Func   string
	File   string
	Line   uint32
	Column uint32
}

func (loc SourceLoc) IsZero() bool {
	return loc == SourceLoc{}
}

// ResolvedTrace is a frame with everything that could be learned about it.
type ResolvedTrace struct {
	stacktrace.Frame
	// Object is the binary or shared library the address belongs to.
	Object string
	// ObjectFunc is the function name as seen by the loader,
	// or the debug info name if the loader does not know it.
	ObjectFunc string
	// Source is the innermost source location of the address.
	Source SourceLoc
	// Inlined holds locations of calls that were inlined into the frame,
	// innermost first. It is non-nil iff Source was resolved.
	Inlined []SourceLoc
}

// Mode selects how much work the resolver does per frame.
type Mode int

const (
	// ModeFull uses debug info from binaries on disk.
	ModeFull Mode = iota
	// ModeLoaderOnly only reports what the loader knows (module and function name)
	// and never opens binaries.
	ModeLoaderOnly
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeLoaderOnly:
		return "loader-only"
	}
	return "unknown"
}

// Demangle returns the human-readable form of a C++/Rust symbol name.
// Names that are not mangled (including Go names) are returned as is.
func Demangle(name string) string {
	return demangle.Filter(name)
}
