// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"os"
	"runtime"
	"runtime/pprof"
)

// installProfiling starts CPU profiling into cpuprof (if set) and returns a function
// that stops it and writes the heap profile into memprof (if set).
func installProfiling(cpuprof, memprof string) func() {
	var stops []func()
	if cpuprof != "" {
		stops = append(stops, startCPUProfile(cpuprof))
	}
	if memprof != "" {
		stops = append(stops, func() { writeHeapProfile(memprof) })
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func startCPUProfile(file string) func() {
	f, err := os.Create(file)
	if err != nil {
		Failf("failed to create cpuprofile file: %v", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		Failf("failed to start cpu profile: %v", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}
}

func writeHeapProfile(file string) {
	f, err := os.Create(file)
	if err != nil {
		Failf("failed to create memprofile file: %v", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		Failf("failed to write mem profile: %v", err)
	}
}
