// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/elf"
	"debug/gosym"
	"fmt"
	"runtime"
)

// openPCLN reads the Go runtime line table. It survives stripping of DWARF (-w)
// and of the symbol table (-s), so it is the last resort for Go binaries.
func openPCLN(ef *elf.File) (*gosym.Table, error) {
	sec := ef.Section(".gopclntab")
	if sec == nil {
		// Position-independent Go binaries.
		sec = ef.Section(".data.rel.ro.gopclntab")
	}
	if sec == nil {
		return nil, fmt.Errorf("no .gopclntab section")
	}
	pclntab, err := sec.Data()
	if err != nil {
		return nil, err
	}
	text := ef.Section(".text")
	if text == nil {
		return nil, fmt.Errorf("no .text section")
	}
	var symtab []byte
	if sec := ef.Section(".gosymtab"); sec != nil {
		if symtab, err = sec.Data(); err != nil {
			return nil, err
		}
	}
	return gosym.NewTable(symtab, gosym.NewLineTable(pclntab, text.Addr))
}

// pclnFrames maps pc to source locations with the Go line table. The table has no
// inlining tree and reports the innermost inlined line under the name of the physical
// function. The runtime knows the tree for the binary it runs, so for the running
// executable addr (the runtime address of pc) is expanded by the runtime.
// Otherwise the name is dropped if the line can't belong to the physical function:
// it is in another file or above the function entry.
func (obj *Object) pclnFrames(pc, addr uint64) []SourceLoc {
	if obj.running {
		if locs := obj.runtimeFrames(addr); len(locs) != 0 {
			return locs
		}
	}
	file, line, fn := obj.pcln.PCToLine(pc)
	if fn == nil {
		return nil
	}
	loc := SourceLoc{
		File: obj.strs.Do(file),
		Line: uint32(line),
	}
	if entryFile, entryLine, _ := obj.pcln.PCToLine(fn.Entry); entryFile == file && entryLine <= line {
		loc.Func = obj.strs.Do(fn.Name)
	}
	return []SourceLoc{loc}
}

func (obj *Object) runtimeFrames(addr uint64) []SourceLoc {
	// Frames are looked up at the byte before the address, as for return addresses.
	frames := runtime.CallersFrames([]uintptr{uintptr(addr) + 1})
	var locs []SourceLoc
	for {
		frame, more := frames.Next()
		if frame.Function == "" {
			break
		}
		locs = append(locs, SourceLoc{
			Func: obj.strs.Do(frame.Function),
			File: obj.strs.Do(frame.File),
			Line: uint32(frame.Line),
		})
		if !more {
			break
		}
	}
	return locs
}
