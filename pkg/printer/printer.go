// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package printer renders resolved stack traces as text.
//
// Output looks like:
//
//	Stack trace in thread 1234:
//	#1    Object "/usr/bin/prog", at 0x4011a3, in main.main
//	      Source "/src/prog/main.go", line 12, in main.main [0x4011a3]
//	#0  | Source "/src/prog/util.go", line 40, in main.helper
//	      Source "/src/prog/log.go", line 7, in main.logf [0x401050]
package printer

import (
	"bytes"
	"fmt"
	"io"
	"iter"

	"github.com/google/stacktrace/pkg/stacktrace"
	"github.com/google/stacktrace/pkg/symbolizer"
	"github.com/google/stacktrace/pkg/tracecfg"
)

type Printer struct {
	// Address appends the frame address to the source line.
	Address bool
	// Object prints the object line even when the source file is known.
	Object bool
	// Reverse prints the outermost frame first.
	Reverse bool
}

func FromConfig(cfg *tracecfg.Config) *Printer {
	return &Printer{
		Address: cfg.Address,
		Object:  cfg.Object,
		Reverse: cfg.Reverse,
	}
}

// Print resolves frames of tr one by one and writes them to w.
func (p *Printer) Print(w io.Writer, tr *stacktrace.Trace, r *symbolizer.Resolver) error {
	return p.print(w, tr.ThreadID, r.ResolveTrace(tr, p.Reverse))
}

// PrintResolved writes frames resolved in advance, frames are in capture order.
func (p *Printer) PrintResolved(w io.Writer, threadID int, frames []symbolizer.ResolvedTrace) error {
	seq := func(yield func(symbolizer.ResolvedTrace) bool) {
		for i := range frames {
			idx := i
			if p.Reverse {
				idx = len(frames) - 1 - i
			}
			if !yield(frames[idx]) {
				return
			}
		}
	}
	return p.print(w, threadID, seq)
}

func (p *Printer) print(w io.Writer, threadID int, frames iter.Seq[symbolizer.ResolvedTrace]) error {
	buf := new(bytes.Buffer)
	buf.WriteString("Stack trace")
	if threadID != 0 {
		fmt.Fprintf(buf, " in thread %v", threadID)
	}
	buf.WriteString(":\n")
	for frame := range frames {
		p.frame(buf, frame)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (p *Printer) frame(buf *bytes.Buffer, frame symbolizer.ResolvedTrace) {
	fmt.Fprintf(buf, "#%-2v", frame.Index)
	indented := true
	if frame.Source.File == "" || p.Object {
		fmt.Fprintf(buf, "   Object %q, at 0x%x, in %v\n", frame.Object, frame.PC, frame.ObjectFunc)
		indented = false
	}
	for i := len(frame.Inlined) - 1; i >= 0; i-- {
		if !indented {
			buf.WriteString("   ")
		}
		p.source(buf, " | ", frame.Inlined[i], 0)
		indented = false
	}
	if frame.Source.File != "" {
		if !indented {
			buf.WriteString("   ")
		}
		p.source(buf, "   ", frame.Source, frame.PC)
	}
}

func (p *Printer) source(buf *bytes.Buffer, indent string, loc symbolizer.SourceLoc, pc uintptr) {
	fmt.Fprintf(buf, "%vSource %q, line %v, in %v", indent, loc.File, loc.Line, loc.Func)
	if p.Address && pc != 0 {
		fmt.Fprintf(buf, " [0x%x]", pc)
	}
	buf.WriteByte('\n')
}
