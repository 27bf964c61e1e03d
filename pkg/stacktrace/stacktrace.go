// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stacktrace captures raw return addresses of the calling goroutine.
// Use pkg/symbolizer to turn them into source locations.
package stacktrace

import (
	"iter"
	"runtime"

	"github.com/google/stacktrace/pkg/osutil"
)

// Frame is a single captured return address.
type Frame struct {
	PC uintptr
	// Index is the position in the trace after skipped frames were dropped, 0 is the innermost frame.
	Index int
}

// Trace is a captured call stack, innermost frame first.
type Trace struct {
	// ThreadID is the OS thread the stack was captured on (0 if unknown).
	ThreadID int
	Frames   []Frame
}

// Capture captures up to maxDepth frames of the calling goroutine.
// The first skip frames are dropped, frame 0 belongs to Capture itself,
// so skip=1 makes the caller of Capture the first frame.
// maxDepth=0 returns an empty trace without walking the stack.
//
//go:noinline
func Capture(maxDepth, skip uint) *Trace {
	tr := &Trace{ThreadID: osutil.Gettid()}
	if maxDepth == 0 {
		return tr
	}
	// The buffer is allocated upfront, runtime.Callers does not allocate.
	pcs := make([]uintptr, maxDepth+skip)
	// Skip runtime.Callers, pcs[0] is the return address into Capture.
	n := runtime.Callers(1, pcs)
	return fill(tr, pcs[:n], skip)
}

// FromPCs makes a trace out of addresses captured elsewhere (e.g. by runtime.Callers
// in a signal handler or read from a crash log).
func FromPCs(threadID int, pcs []uintptr, skip uint) *Trace {
	return fill(&Trace{ThreadID: threadID}, pcs, skip)
}

func fill(tr *Trace, pcs []uintptr, skip uint) *Trace {
	if uint(len(pcs)) <= skip {
		return tr
	}
	pcs = pcs[skip:]
	tr.Frames = make([]Frame, len(pcs))
	for i, pc := range pcs {
		tr.Frames[i] = Frame{PC: pc, Index: i}
	}
	return tr
}

func (tr *Trace) Len() int {
	return len(tr.Frames)
}

// All iterates over frames starting from the innermost one.
func (tr *Trace) All() iter.Seq2[int, Frame] {
	return func(yield func(int, Frame) bool) {
		for i, frame := range tr.Frames {
			if !yield(i, frame) {
				return
			}
		}
	}
}

// Backward iterates over frames starting from the outermost one.
func (tr *Trace) Backward() iter.Seq2[int, Frame] {
	return func(yield func(int, Frame) bool) {
		for i := len(tr.Frames) - 1; i >= 0; i-- {
			if !yield(i, tr.Frames[i]) {
				return
			}
		}
	}
}

// PCs returns the raw addresses in capture order.
func (tr *Trace) PCs() []uintptr {
	pcs := make([]uintptr, len(tr.Frames))
	for i, frame := range tr.Frames {
		pcs[i] = frame.PC
	}
	return pcs
}
