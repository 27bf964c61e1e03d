// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer_test

import (
	"bufio"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/stacktrace/pkg/symbolizer"
	"github.com/stretchr/testify/assert"
)

const inlinesSource = "testdata/inlines/main.go"

// inlinesFrame mirrors the output of testdata/inlines.
type inlinesFrame struct {
	PC       uint64
	Resolved symbolizer.ResolvedTrace
	Runtime  []symbolizer.SourceLoc
}

// markerLines returns line numbers of "// call: name" comments in file.
func markerLines(t *testing.T, file string) map[string]uint32 {
	f, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines := make(map[string]uint32)
	s := bufio.NewScanner(f)
	for line := uint32(1); s.Scan(); line++ {
		if _, name, ok := strings.Cut(s.Text(), "// call: "); ok {
			lines[strings.TrimSpace(name)] = line
		}
	}
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}
	return lines
}

func buildInlines(t *testing.T, dir string, flags ...string) string {
	if testing.Short() {
		t.Skip("builds binaries")
	}
	if runtime.GOOS != "linux" {
		t.Skip("requires ELF and /proc")
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skipf("no go toolchain: %v", err)
	}
	bin := filepath.Join(dir, "prog")
	args := append([]string{"build", "-o", bin}, flags...)
	cmd := exec.Command(gobin, append(args, inlinesSource)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build %v failed: %v\n%s", flags, err, out)
	}
	return bin
}

func runInlines(t *testing.T, dir string, args ...string) []inlinesFrame {
	// Started via a relative path, as a shell would do for ./prog.
	cmd := exec.Command("./prog", args...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("prog failed: %v", err)
	}
	var frames []inlinesFrame
	if err := json.Unmarshal(out, &frames); err != nil {
		t.Fatalf("bad output: %v\n%s", err, out)
	}
	if len(frames) != 2 {
		t.Fatalf("got %v frames", len(frames))
	}
	return frames
}

func chain(frame symbolizer.ResolvedTrace) []symbolizer.SourceLoc {
	locs := append([]symbolizer.SourceLoc{frame.Source}, frame.Inlined...)
	for i := range locs {
		locs[i].Column = 0
	}
	return locs
}

func copyFile(t *testing.T, src, dst string) {
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, data, 0755); err != nil {
		t.Fatal(err)
	}
}

func TestResolveInlinedChain(t *testing.T) {
	src, err := filepath.Abs(inlinesSource)
	if err != nil {
		t.Fatal(err)
	}
	lines := markerLines(t, inlinesSource)
	want := [][]symbolizer.SourceLoc{
		{
			{Func: "main.leaf", File: src, Line: lines["leaf"]},
			{Func: "main.mid", File: src, Line: lines["mid"]},
			{Func: "main.outer", File: src, Line: lines["outer"]},
		},
		{
			{Func: "main.main", File: src, Line: lines["main"]},
		},
	}
	tests := []struct {
		name    string
		flags   []string
		replace bool
	}{
		{name: "exe"},
		{name: "pie", flags: []string{"-buildmode=pie"}},
		{name: "nodwarf", flags: []string{"-ldflags=-w"}},
		{name: "pie-nodwarf", flags: []string{"-buildmode=pie", "-ldflags=-w"}},
		{name: "replaced", replace: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			bin := buildInlines(t, dir, test.flags...)
			var args []string
			if test.replace {
				// Any other ELF file takes the place of the running binary.
				exe, err := os.Executable()
				if err != nil {
					t.Fatal(err)
				}
				copyFile(t, exe, filepath.Join(dir, "other"))
				args = []string{"-replace", "other"}
			}
			frames := runInlines(t, dir, args...)
			object, err := filepath.EvalSymlinks(bin)
			if err != nil {
				t.Fatal(err)
			}
			for i, frame := range frames {
				if diff := cmp.Diff(want[i], frame.Runtime); diff != "" {
					t.Fatalf("runtime view of frame %v differs:\n%v", i, diff)
				}
				res := frame.Resolved
				assert.Equal(t, i, res.Index)
				assert.Equal(t, uintptr(frame.PC-1), res.PC, "frame %v", i)
				assert.Equal(t, object, res.Object, "frame %v", i)
				assert.NotEmpty(t, res.ObjectFunc, "frame %v", i)
				if diff := cmp.Diff(want[i], chain(res)); diff != "" {
					t.Fatalf("frame %v:\n%v", i, diff)
				}
				// Every frame points at the call it made, not at the line after it.
				assert.Equal(t, want[i][0].Line, res.Source.Line, "frame %v", i)
			}
		})
	}
}

// TestSymbolizeInlinedChain reads a binary that is not running,
// only debug info of the file is available then.
func TestSymbolizeInlinedChain(t *testing.T) {
	src, err := filepath.Abs(inlinesSource)
	if err != nil {
		t.Fatal(err)
	}
	lines := markerLines(t, inlinesSource)
	cache := symbolizer.NewObjectCache()
	defer cache.Close()

	dir := t.TempDir()
	bin := buildInlines(t, dir, "-buildmode=exe")
	frames := runInlines(t, dir)
	obj := cache.Get(bin)
	if !obj.Loaded() || !obj.HasDebugInfo() {
		t.Fatalf("failed to load %v", bin)
	}
	// Not a position-independent binary, runtime and link-time addresses match.
	got := obj.Symbolize(frames[0].PC - 1)
	want := []symbolizer.SourceLoc{
		{Func: "main.leaf", File: src, Line: lines["leaf"]},
		{Func: "main.mid", File: src, Line: lines["mid"]},
		{Func: "main.outer", File: src, Line: lines["outer"]},
	}
	for i := range got {
		got[i].Column = 0
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}

	// The Go line table knows the line but not which inlined function it belongs to.
	dir = t.TempDir()
	bin = buildInlines(t, dir, "-buildmode=exe", "-ldflags=-w")
	frames = runInlines(t, dir)
	obj = cache.Get(bin)
	if !obj.Loaded() || !obj.HasDebugInfo() {
		t.Fatalf("failed to load %v", bin)
	}
	got = obj.Symbolize(frames[0].PC - 1)
	want = []symbolizer.SourceLoc{
		{File: src, Line: lines["leaf"]},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
	got = obj.Symbolize(frames[1].PC - 1)
	want = []symbolizer.SourceLoc{
		{Func: "main.main", File: src, Line: lines["main"]},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatal(diff)
	}
}
