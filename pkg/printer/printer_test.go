// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package printer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/stacktrace/pkg/loader"
	"github.com/google/stacktrace/pkg/stacktrace"
	"github.com/google/stacktrace/pkg/symbolizer"
	"github.com/google/stacktrace/pkg/tracecfg"
	"github.com/stretchr/testify/assert"
)

func testFrames() []symbolizer.ResolvedTrace {
	return []symbolizer.ResolvedTrace{
		{
			Frame:      stacktrace.Frame{PC: 0x401050, Index: 0},
			Object:     "/usr/bin/prog",
			ObjectFunc: "main.logf",
			Source:     symbolizer.SourceLoc{Func: "main.logf", File: "/src/prog/log.go", Line: 7},
			Inlined: []symbolizer.SourceLoc{
				{Func: "main.helper", File: "/src/prog/util.go", Line: 40},
				{Func: "main.run", File: "/src/prog/util.go", Line: 51},
			},
		},
		{
			Frame:      stacktrace.Frame{PC: 0x4011a3, Index: 1},
			Object:     "/usr/bin/prog",
			ObjectFunc: "main.main",
			Source:     symbolizer.SourceLoc{Func: "main.main", File: "/src/prog/main.go", Line: 12},
			Inlined:    []symbolizer.SourceLoc{},
		},
		{
			Frame:      stacktrace.Frame{PC: 0x7f001234, Index: 2},
			Object:     "/lib/libc.so.6",
			ObjectFunc: "__libc_start_main",
		},
	}
}

func TestPrintResolved(t *testing.T) {
	tests := []struct {
		name    string
		printer Printer
		tid     int
		want    string
	}{
		{
			name:    "defaults",
			printer: Printer{Reverse: true},
			tid:     1234,
			want: `Stack trace in thread 1234:
#2    Object "/lib/libc.so.6", at 0x7f001234, in __libc_start_main
#1    Source "/src/prog/main.go", line 12, in main.main
#0  | Source "/src/prog/util.go", line 51, in main.run
    | Source "/src/prog/util.go", line 40, in main.helper
      Source "/src/prog/log.go", line 7, in main.logf
`,
		},
		{
			name:    "everything",
			printer: Printer{Address: true, Object: true},
			want: `Stack trace:
#0    Object "/usr/bin/prog", at 0x401050, in main.logf
    | Source "/src/prog/util.go", line 51, in main.run
    | Source "/src/prog/util.go", line 40, in main.helper
      Source "/src/prog/log.go", line 7, in main.logf [0x401050]
#1    Object "/usr/bin/prog", at 0x4011a3, in main.main
      Source "/src/prog/main.go", line 12, in main.main [0x4011a3]
#2    Object "/lib/libc.so.6", at 0x7f001234, in __libc_start_main
`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			if err := test.printer.PrintResolved(buf, test.tid, testFrames()); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, buf.String()); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

type fakeLoader struct{}

func (fakeLoader) Lookup(addr uint64) (loader.Info, bool) {
	if addr < 0x1000 {
		return loader.Info{}, false
	}
	return loader.Info{Path: "/bin/prog", Base: 0x400000, SymName: "main.f"}, true
}

func TestPrint(t *testing.T) {
	r := symbolizer.NewResolver(nil, symbolizer.WithLoader(fakeLoader{}),
		symbolizer.WithMode(symbolizer.ModeLoaderOnly))
	tr := stacktrace.FromPCs(42, []uintptr{0x401000, 0x10}, 0)
	buf := new(bytes.Buffer)
	p := FromConfig(tracecfg.Default())
	if err := p.Print(buf, tr, r); err != nil {
		t.Fatal(err)
	}
	want := "Stack trace in thread 42:\n" +
		"#1    Object \"\", at 0x10, in \n" +
		"#0    Object \"/bin/prog\", at 0x401000, in main.f\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatal(diff)
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed")
}

func TestPrintError(t *testing.T) {
	p := &Printer{}
	assert.Error(t, p.PrintResolved(errWriter{}, 0, testFrames()))
}
