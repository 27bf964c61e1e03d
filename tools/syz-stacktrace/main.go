// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// syz-stacktrace captures, symbolizes and prints its own call stack.
// It is a smoke test of the whole pipeline on the current machine:
//
//	syz-stacktrace -config=trace.yaml -depth=3 -stats
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/stacktrace/pkg/config"
	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/printer"
	"github.com/google/stacktrace/pkg/stacktrace"
	"github.com/google/stacktrace/pkg/stat"
	"github.com/google/stacktrace/pkg/symbolizer"
	"github.com/google/stacktrace/pkg/tool"
	"github.com/google/stacktrace/pkg/tracecfg"
)

var (
	flagConfig = flag.String("config", "", "configuration file (json or yaml)")
	flagDepth  = flag.Int("depth", 3, "number of extra recursive calls before capturing")
	flagStats  = flag.Bool("stats", false, "print symbolizer metrics to stderr")
	flagDiag   = flag.Bool("diag", false, "print symbolizer diagnostics (unreadable binaries etc) to stderr")
	flagSave   = flag.String("save_config", "", "write the effective configuration to this file")
)

func main() {
	defer tool.Init()()
	cfg := tracecfg.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = tracecfg.LoadFile(*flagConfig); err != nil {
			tool.Fail(err)
		}
	}
	if cfg.Verbosity != 0 {
		log.SetVerbosity(cfg.Verbosity)
	}
	if *flagSave != "" {
		if err := config.SaveFile(*flagSave, cfg); err != nil {
			tool.Fail(err)
		}
	}
	if *flagDiag {
		log.EnableLogCaching(1000, 1<<20)
	}

	// Skip one more frame for capture below.
	tr := recurse(*flagDepth, cfg.MaxDepth, cfg.Skip+1)

	cache := symbolizer.NewObjectCache(symbolizer.WithLineCacheSize(cfg.LineCacheSize))
	defer cache.Close()
	mode := symbolizer.ModeFull
	if cfg.LoaderOnly {
		mode = symbolizer.ModeLoaderOnly
	}
	r := symbolizer.NewResolver(cache,
		symbolizer.WithMode(mode),
		symbolizer.WithInlineLimit(cfg.InlineLimit),
	)
	p := printer.FromConfig(cfg)
	if cfg.Parallelism > 1 {
		frames, err := r.ResolveAll(context.Background(), tr, cfg.Parallelism)
		if err != nil {
			log.Fatal(err)
		}
		err = p.PrintResolved(os.Stdout, tr.ThreadID, frames)
		if err != nil {
			log.Fatal(err)
		}
	} else if err := p.Print(os.Stdout, tr, r); err != nil {
		log.Fatal(err)
	}

	if *flagDiag {
		fmt.Fprintf(os.Stderr, "\ndiagnostics:\n%v", log.CachedLogOutput())
	}
	if *flagStats {
		for _, v := range stat.Collect() {
			fmt.Fprintf(os.Stderr, "%-40v %v\n", v.Name+":", v.Value)
		}
	}
}

//go:noinline
func recurse(depth int, maxDepth, skip uint) *stacktrace.Trace {
	if depth > 0 {
		return recurse(depth-1, maxDepth, skip)
	}
	return capture(maxDepth, skip)
}

//go:noinline
func capture(maxDepth, skip uint) *stacktrace.Trace {
	return stacktrace.Capture(maxDepth, skip)
}
