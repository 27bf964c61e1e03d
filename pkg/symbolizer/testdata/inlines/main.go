// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// inlines captures its stack from inside a chain of inlined calls, resolves it
// with its own Resolver and prints the result along with what the runtime
// knows about every frame as JSON.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"runtime"

	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/stacktrace"
	"github.com/google/stacktrace/pkg/symbolizer"
)

var flagReplace = flag.String("replace", "", "rename this file over the executable before resolving")

// Frame describes one captured frame.
type Frame struct {
	PC       uint64
	Resolved symbolizer.ResolvedTrace
	// Runtime is the runtime view of the frame, innermost first.
	Runtime []symbolizer.SourceLoc
}

func leaf() *stacktrace.Trace {
	return stacktrace.Capture(8, 1) // call: leaf
}

func mid() *stacktrace.Trace {
	return leaf() // call: mid
}

//go:noinline
func outer() *stacktrace.Trace {
	return mid() // call: outer
}

func main() {
	flag.Parse()
	tr := outer() // call: main
	if *flagReplace != "" {
		if err := os.Rename(*flagReplace, os.Args[0]); err != nil {
			log.Fatal(err)
		}
	}
	cache := symbolizer.NewObjectCache()
	defer cache.Close()
	r := symbolizer.NewResolver(cache)
	var frames []Frame
	for _, frame := range tr.Frames[:2] {
		frames = append(frames, Frame{
			PC:       uint64(frame.PC),
			Resolved: r.Resolve(frame),
			Runtime:  runtimeFrames(frame.PC),
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "\t")
	if err := enc.Encode(frames); err != nil {
		log.Fatal(err)
	}
}

func runtimeFrames(pc uintptr) []symbolizer.SourceLoc {
	var locs []symbolizer.SourceLoc
	frames := runtime.CallersFrames([]uintptr{pc})
	for {
		frame, more := frames.Next()
		locs = append(locs, symbolizer.SourceLoc{
			Func: frame.Function,
			File: frame.File,
			Line: uint32(frame.Line),
		})
		if !more {
			return locs
		}
	}
}
