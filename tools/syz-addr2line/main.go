// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// syz-addr2line symbolizes addresses of an ELF binary read from stdin, one per line.
// Output follows llvm-symbolizer GNU style: function and file:line for the address
// and for every call it was inlined into, followed by an empty line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/osutil"
	"github.com/google/stacktrace/pkg/symbolizer"
	"github.com/google/stacktrace/pkg/tool"
)

var (
	flagObj     = flag.String("obj", "", "path to the binary")
	flagInlines = flag.Bool("inlines", true, "print inlined calls")
)

func main() {
	defer tool.Init()()
	if *flagObj == "" {
		tool.Failf("usage: syz-addr2line -obj=path/to/binary < addresses")
	}
	if err := osutil.IsAccessible(*flagObj); err != nil {
		tool.Fail(err)
	}
	cache := symbolizer.NewObjectCache()
	defer cache.Close()
	obj := cache.Get(*flagObj)
	if !obj.Loaded() {
		tool.Failf("failed to load %v", *flagObj)
	}
	if !obj.HasDebugInfo() {
		log.Logf(0, "%v has no debug info, only function names are available", *flagObj)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		pc, err := strconv.ParseUint(line, 0, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse PC %q: %v\n", line, err)
			continue
		}
		locs := obj.Symbolize(pc)
		if len(locs) == 0 {
			locs = []symbolizer.SourceLoc{{}}
		}
		if !*flagInlines {
			locs = locs[:1]
		}
		for _, loc := range locs {
			printLoc(out, loc)
		}
		fmt.Fprintln(out)
		// Keep output in sync with input for interactive use.
		out.Flush()
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("failed to read input: %v", err)
	}
}

func printLoc(out *bufio.Writer, loc symbolizer.SourceLoc) {
	fn, file := loc.Func, loc.File
	if fn == "" {
		fn = "??"
	}
	if file == "" {
		file = "??"
	}
	fmt.Fprintln(out, fn)
	if loc.Column == 0 {
		fmt.Fprintf(out, "%s:%d\n", file, loc.Line)
	} else {
		fmt.Fprintf(out, "%s:%d:%d\n", file, loc.Line, loc.Column)
	}
}
