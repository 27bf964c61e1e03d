// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/dwarf"
	"debug/elf"
	"debug/gosym"
	"fmt"
	"sort"

	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/osutil"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Object is a parsed binary owned by an ObjectCache.
// An Object that failed to load is still cached, Loaded reports false for it.
// Objects are never modified after they are put into the cache.
type Object struct {
	path     string
	running  bool   // the binary of the current process
	linkBase uint64 // link-time address of file offset 0
	ef       *elf.File
	dw       *dwarf.Data
	pcln     *gosym.Table
	tables   [][]elf.Symbol // .symtab and/or .dynsym, in lookup order
	sections []Section
	cuRanges []cuRange
	lines    *lru.Cache[dwarf.Offset, *parsedCU]
	subs     *lru.Cache[dwarf.Offset, []subprogram]
	strs     *Interner
}

// Section is an allocated (loadable) section of a binary.
type Section struct {
	Name string
	Addr uint64
	Size uint64
}

func (sec Section) contains(addr uint64) bool {
	return addr >= sec.Addr && addr-sec.Addr < sec.Size
}

// lineResult is the outcome of a single nearest-line query.
type lineResult struct {
	loc      SourceLoc
	inliners inlinerIter
}

// inlinerIter hands out functions that the queried location was inlined into, innermost first.
type inlinerIter interface {
	next() (SourceLoc, bool)
}

type sliceIter struct {
	locs []SourceLoc
}

func (it *sliceIter) next() (SourceLoc, bool) {
	if len(it.locs) == 0 {
		return SourceLoc{}, false
	}
	loc := it.locs[0]
	it.locs = it.locs[1:]
	return loc, true
}

func openObject(path string, lineCacheSize int, strs *Interner) (*Object, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open binary %v: %w", path, err)
	}
	obj := &Object{
		path:     path,
		running:  osutil.SameFile(path, osutil.SelfExe),
		linkBase: linkBase(ef.Progs),
		ef:       ef,
		strs:     strs,
	}
	symtab, nsymtab := functionSymbols(ef.Symbols())
	dynsym, ndynsym := functionSymbols(ef.DynamicSymbols())
	if nsymtab != 0 {
		obj.tables = append(obj.tables, symtab)
	}
	if ndynsym != 0 {
		obj.tables = append(obj.tables, dynsym)
	}
	for _, sec := range ef.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 || sec.Size == 0 {
			continue
		}
		obj.sections = append(obj.sections, Section{
			Name: sec.Name,
			Addr: sec.Addr,
			Size: sec.Size,
		})
	}
	if err := obj.openDWARF(lineCacheSize); err != nil {
		log.Logf(1, "no usable DWARF in %v: %v", path, err)
		obj.dw = nil
	}
	if obj.dw == nil {
		if obj.pcln, err = openPCLN(ef); err != nil {
			log.Logf(2, "no Go line table in %v: %v", path, err)
		}
	}
	if len(obj.tables) == 0 {
		if obj.pcln == nil {
			ef.Close()
			return nil, fmt.Errorf("binary %v has no symbols", path)
		}
		// The Go line table knows function names on its own.
		obj.tables = append(obj.tables, nil)
	}
	return obj, nil
}

func (obj *Object) openDWARF(lineCacheSize int) error {
	dw, err := obj.ef.DWARF()
	if err != nil {
		return err
	}
	obj.dw = dw
	if obj.lines, err = lru.New[dwarf.Offset, *parsedCU](lineCacheSize); err != nil {
		return err
	}
	if obj.subs, err = lru.New[dwarf.Offset, []subprogram](lineCacheSize); err != nil {
		return err
	}
	return obj.buildIndex()
}

// Loaded reports whether the binary was successfully parsed.
func (obj *Object) Loaded() bool {
	return obj.ef != nil
}

func (obj *Object) Path() string {
	return obj.path
}

// HasDebugInfo reports whether source lines are available (DWARF or Go line table).
func (obj *Object) HasDebugInfo() bool {
	return obj.dw != nil || obj.pcln != nil
}

// Sections returns allocated sections in section header order.
func (obj *Object) Sections() []Section {
	return obj.sections
}

// Symbolize returns source locations for a link-time address, innermost first.
// The first element is the location of pc itself, the rest are callers of inlined code.
func (obj *Object) Symbolize(pc uint64) []SourceLoc {
	if !obj.Loaded() {
		return nil
	}
	res, ok := obj.findNearestLine(pc, 0)
	if !ok {
		return nil
	}
	locs := []SourceLoc{demangleLoc(res.loc)}
	return append(locs, expandInlined(res.inliners, DefaultInlineLimit)...)
}

// findNearestLine looks up runtime address addr in allocated sections.
// base is the runtime address of file offset 0 as reported by the loader, 0 if addr is
// a link-time address. The address is tried as is and, for position-independent modules,
// translated by the load bias. Symbol tables are consulted in order (.symtab first).
func (obj *Object) findNearestLine(addr, base uint64) (lineResult, bool) {
	bias := obj.loadBias(base)
	for _, sec := range obj.sections {
		pc := addr
		if !sec.contains(pc) {
			if bias == 0 || bias > addr {
				continue
			}
			pc = addr - bias
			if !sec.contains(pc) {
				continue
			}
		}
		for _, syms := range obj.tables {
			if res, ok := obj.lookup(pc, addr, syms); ok {
				return res, true
			}
		}
	}
	return lineResult{}, false
}

// loadBias returns the distance the module was moved by from its link-time address.
func (obj *Object) loadBias(base uint64) uint64 {
	if base < obj.linkBase {
		return 0
	}
	return base - obj.linkBase
}

// linkBase returns the link-time address of file offset 0, segments are mapped
// page-aligned so every PT_LOAD keeps vaddr-offset of its first page.
// Go PIE binaries are linked at 0x400000, shared libraries usually at 0.
func linkBase(progs []*elf.Prog) uint64 {
	var base uint64
	found := false
	for _, prog := range progs {
		if prog.Type != elf.PT_LOAD || prog.Vaddr < prog.Off {
			continue
		}
		if addr := prog.Vaddr - prog.Off; !found || addr < base {
			base, found = addr, true
		}
	}
	return base
}

func (obj *Object) lookup(pc, addr uint64, syms []elf.Symbol) (lineResult, bool) {
	var locs []SourceLoc
	switch {
	case obj.dw != nil:
		locs = obj.dwarfFrames(pc)
	case obj.pcln != nil:
		locs = obj.pclnFrames(pc, addr)
	}
	var res lineResult
	if len(locs) != 0 {
		res.loc = locs[0]
		locs = locs[1:]
	}
	// The Go line table leaves out the name of inlined functions it can't identify,
	// the symbol would name the function they were inlined into.
	if res.loc.Func == "" && (obj.pcln == nil || res.loc.Line == 0) {
		res.loc.Func = obj.strs.Do(findSymbol(syms, pc))
	}
	if res.loc.IsZero() {
		return lineResult{}, false
	}
	res.inliners = &sliceIter{locs: locs}
	return res, true
}

func (obj *Object) close() {
	if obj.ef != nil {
		obj.ef.Close()
	}
}

// functionSymbols returns function symbols sorted for findSymbol
// and the total number of symbols in the table.
func functionSymbols(all []elf.Symbol, err error) ([]elf.Symbol, int) {
	if err != nil {
		return nil, 0
	}
	var symbols []elf.Symbol
	for _, sym := range all {
		typ := elf.ST_TYPE(sym.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_GNU_IFUNC || sym.Section == elf.SHN_UNDEF || sym.Value == 0 {
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].Value != symbols[j].Value {
			return symbols[i].Value < symbols[j].Value
		}
		if symbols[i].Size != symbols[j].Size {
			return symbols[i].Size < symbols[j].Size
		}
		return symbols[i].Name > symbols[j].Name
	})
	return symbols, len(all)
}

// findSymbol returns the name of the function symbol covering pc.
// Symbols without size are assumed to extend up to the next symbol.
func findSymbol(symbols []elf.Symbol, pc uint64) string {
	idx := sort.Search(len(symbols), func(i int) bool {
		return symbols[i].Value > pc
	})
	if idx == 0 {
		return ""
	}
	s := symbols[idx-1]
	if s.Size > 0 {
		if pc < s.Value+s.Size {
			return s.Name
		}
		return ""
	}
	limit := s.Value + 4096
	if idx < len(symbols) {
		limit = symbols[idx].Value
	}
	if pc < limit {
		return s.Name
	}
	return ""
}
