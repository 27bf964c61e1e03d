// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to standard log package with some extensions:
//   - verbosity levels
//   - global verbosity setting that can be used by multiple packages
//   - ability to redirect all output
//   - ability to cache recent output in memory
//
// Library packages log degradations (unreadable binaries, missing debug info)
// at levels 1 and above, so they are silent by default.
package log

import (
	"flag"
	"fmt"
	"io"
	golog "log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	flagV        = flag.Int("vv", 0, "verbosity")
	verbosity    atomic.Int64
	overridden   atomic.Bool
	mu           sync.Mutex
	logger       = golog.New(os.Stderr, "", golog.LstdFlags)
	cacheMem     int
	cacheMaxMem  int
	cachePos     int
	cacheEntries []string
	prependTime  = true // for testing
)

// SetVerbosity overrides the -vv flag value.
func SetVerbosity(v int) {
	verbosity.Store(int64(v))
	overridden.Store(true)
}

// V reports whether messages at verbosity level v are printed.
func V(v int) bool {
	return v <= level()
}

func level() int {
	if overridden.Load() {
		return int(verbosity.Load())
	}
	return *flagV
}

// SetOutput redirects printed messages to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// EnableLogCaching enables in memory caching of log output.
// Caches up to maxLines, but no more than maxMem bytes.
// Cached output can later be queried with CachedLogOutput.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries != nil {
		Fatalf("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cacheMaxMem = maxMem
	cacheEntries = make([]string, maxLines)
}

// CachedLogOutput retrieves cached log output.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	buf := new(strings.Builder)
	for i := range cacheEntries {
		pos := (cachePos + i) % len(cacheEntries)
		if cacheEntries[pos] == "" {
			continue
		}
		buf.WriteString(cacheEntries[pos])
		buf.WriteByte('\n')
	}
	return buf.String()
}

func Logf(v int, msg string, args ...any) {
	doLog := V(v)
	mu.Lock()
	defer mu.Unlock()
	if cacheEntries != nil && v <= 1 {
		cache(fmt.Sprintf(msg, args...))
	}
	if doLog {
		logger.Printf(msg, args...)
	}
}

// cache appends an entry to the ring, evicting the oldest entries while over the memory limit.
// Requires mu.
func cache(entry string) {
	if prependTime {
		entry = time.Now().Format("2006/01/02 15:04:05 ") + entry
	}
	cacheMem -= len(cacheEntries[cachePos])
	if cacheMem < 0 {
		panic("log cache size underflow")
	}
	cacheEntries[cachePos] = entry
	cacheMem += len(entry)
	cachePos = (cachePos + 1) % len(cacheEntries)
	for i := 0; i < len(cacheEntries)-1 && cacheMem > cacheMaxMem; i++ {
		pos := (cachePos + i) % len(cacheEntries)
		cacheMem -= len(cacheEntries[pos])
		cacheEntries[pos] = ""
	}
	if cacheMem < 0 {
		panic("log cache size underflow")
	}
}

func Fatal(err error) {
	golog.Fatal(err)
}

func Fatalf(msg string, args ...any) {
	golog.Fatalf(msg, args...)
}
