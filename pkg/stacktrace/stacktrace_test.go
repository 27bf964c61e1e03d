// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stacktrace

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func funcName(pc uintptr) string {
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return frame.Function
}

//go:noinline
func captureHere(maxDepth, skip uint) *Trace {
	return Capture(maxDepth, skip)
}

func TestCaptureSkip(t *testing.T) {
	tr := captureHere(64, 0)
	if tr.Len() < 3 {
		t.Fatalf("captured only %v frames", tr.Len())
	}
	if name := funcName(tr.Frames[0].PC); !strings.HasSuffix(name, "stacktrace.Capture") {
		t.Fatalf("frame 0 is %q, want Capture", name)
	}
	if name := funcName(tr.Frames[1].PC); !strings.HasSuffix(name, "stacktrace.captureHere") {
		t.Fatalf("frame 1 is %q, want captureHere", name)
	}

	for skip := uint(1); skip <= 3; skip++ {
		skipped := captureHere(64, skip)
		if got, want := skipped.Len(), tr.Len()-int(skip); got != want {
			t.Fatalf("skip=%v: got %v frames, want %v", skip, got, want)
		}
		for i, frame := range skipped.Frames {
			if frame.Index != i {
				t.Fatalf("skip=%v: frame %v has index %v", skip, i, frame.Index)
			}
			if got, want := funcName(frame.PC), funcName(tr.Frames[i+int(skip)].PC); got != want {
				t.Fatalf("skip=%v: frame %v is %q, want %q", skip, i, got, want)
			}
		}
	}
	tr1 := captureHere(64, 1)
	if name := funcName(tr1.Frames[0].PC); !strings.HasSuffix(name, "stacktrace.captureHere") {
		t.Fatalf("frame 0 is %q, want captureHere", name)
	}
}

func TestCaptureDepth(t *testing.T) {
	tr := Capture(0, 1)
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Frames)
	if runtime.GOOS == "linux" {
		assert.NotZero(t, tr.ThreadID)
	}

	tr = Capture(2, 1)
	assert.Equal(t, 2, tr.Len())
	tr = Capture(1, 0)
	assert.Equal(t, 1, tr.Len())
	if name := funcName(tr.Frames[0].PC); !strings.HasSuffix(name, "stacktrace.Capture") {
		t.Fatalf("frame 0 is %q, want Capture", name)
	}
}

func TestCaptureSkipEverything(t *testing.T) {
	tr := Capture(4, 1000)
	assert.Equal(t, 0, tr.Len())
}

func TestFromPCs(t *testing.T) {
	tr := FromPCs(7, []uintptr{10, 20, 30, 40}, 1)
	assert.Equal(t, 7, tr.ThreadID)
	assert.Equal(t, []Frame{{20, 0}, {30, 1}, {40, 2}}, tr.Frames)
	assert.Equal(t, []uintptr{20, 30, 40}, tr.PCs())
	assert.Equal(t, 0, FromPCs(0, []uintptr{10}, 1).Len())
	assert.Equal(t, 0, FromPCs(0, nil, 0).Len())
}

func TestIteration(t *testing.T) {
	tr := FromPCs(0, []uintptr{10, 20, 30}, 0)
	var fwd, bwd []int
	for i, frame := range tr.All() {
		assert.Equal(t, i, frame.Index)
		fwd = append(fwd, int(frame.PC))
	}
	for i, frame := range tr.Backward() {
		assert.Equal(t, i, frame.Index)
		bwd = append(bwd, int(frame.PC))
	}
	assert.Equal(t, []int{10, 20, 30}, fwd)
	assert.Equal(t, []int{30, 20, 10}, bwd)
	for range tr.All() {
		break
	}
}
