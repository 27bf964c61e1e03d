// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/stacktrace/pkg/log"
)

type parsedCU struct {
	entries []dwarf.LineEntry
	files   []*dwarf.LineFile
}

type cuRange struct {
	low   uint64
	high  uint64
	entry *dwarf.Entry
}

type subprogram struct {
	low   uint64
	high  uint64
	entry *dwarf.Entry
}

// Chains of abstract_origin/specification references longer than this are treated as broken.
const maxOriginDepth = 4

func (obj *Object) buildIndex() error {
	r := obj.dw.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		ranges, err := obj.dw.Ranges(entry)
		if err != nil {
			continue
		}
		for _, rng := range ranges {
			obj.cuRanges = append(obj.cuRanges, cuRange{
				low:   rng[0],
				high:  rng[1],
				entry: entry,
			})
		}
		r.SkipChildren()
	}
	if len(obj.cuRanges) == 0 {
		return errors.New("no compile units with address ranges")
	}
	sort.Slice(obj.cuRanges, func(i, j int) bool {
		return obj.cuRanges[i].low < obj.cuRanges[j].low
	})
	return nil
}

func (obj *Object) findCU(pc uint64) *dwarf.Entry {
	idx := sort.Search(len(obj.cuRanges), func(i int) bool {
		return obj.cuRanges[i].high > pc
	})
	if idx < len(obj.cuRanges) && obj.cuRanges[idx].low <= pc {
		return obj.cuRanges[idx].entry
	}
	return nil
}

func (obj *Object) parsedCU(cu *dwarf.Entry) (*parsedCU, error) {
	if p, ok := obj.lines.Get(cu.Offset); ok {
		return p, nil
	}
	lr, err := obj.dw.LineReader(cu)
	if err != nil {
		return nil, err
	}
	if lr == nil {
		return nil, fmt.Errorf("no line table")
	}
	var entries []dwarf.LineEntry
	var entry dwarf.LineEntry
	for {
		if err := lr.Next(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	// End of one sequence and start of the next one can share an address,
	// the start must win.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Address != entries[j].Address {
			return entries[i].Address < entries[j].Address
		}
		return entries[i].EndSequence && !entries[j].EndSequence
	})
	p := &parsedCU{
		entries: entries,
		files:   lr.Files(),
	}
	obj.lines.Add(cu.Offset, p)
	return p, nil
}

// lineAt returns the row covering pc.
func (p *parsedCU) lineAt(pc uint64) (*dwarf.LineEntry, bool) {
	idx := sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].Address > pc
	})
	if idx == 0 {
		return nil, false
	}
	entry := &p.entries[idx-1]
	// End of sequence rows do not describe any code.
	if entry.EndSequence || entry.Line == 0 {
		return nil, false
	}
	return entry, true
}

func (obj *Object) function(cu *dwarf.Entry, pc uint64) (*dwarf.Entry, error) {
	subs, ok := obj.subs.Get(cu.Offset)
	if !ok {
		var err error
		if subs, err = obj.parseSubprograms(cu); err != nil {
			return nil, err
		}
		obj.subs.Add(cu.Offset, subs)
	}
	idx := sort.Search(len(subs), func(i int) bool {
		return subs[i].high > pc
	})
	if idx < len(subs) && subs[idx].low <= pc {
		return subs[idx].entry, nil
	}
	return nil, nil
}

func (obj *Object) parseSubprograms(cu *dwarf.Entry) ([]subprogram, error) {
	var subs []subprogram
	r := obj.dw.Reader()
	r.Seek(cu.Offset)
	if _, err := r.Next(); err != nil {
		return nil, err
	}
	depth := 0
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Tag == 0 {
			if depth == 0 {
				break
			}
			depth--
			continue
		}
		switch entry.Tag {
		case dwarf.TagSubprogram:
			if ranges, err := obj.dw.Ranges(entry); err == nil {
				for _, rng := range ranges {
					subs = append(subs, subprogram{
						low:   rng[0],
						high:  rng[1],
						entry: entry,
					})
				}
			}
		case dwarf.TagNamespace, dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType:
			// C++ member functions can be defined inside of these.
			if entry.Children {
				depth++
				continue
			}
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].low < subs[j].low
	})
	return subs, nil
}

// dwarfFrames returns locations for pc, innermost first.
// All but the last location belong to inlined calls.
func (obj *Object) dwarfFrames(pc uint64) []SourceLoc {
	cu := obj.findCU(pc)
	if cu == nil {
		return nil
	}
	p, err := obj.parsedCU(cu)
	if err != nil {
		log.Logf(2, "%v: failed to read line table at 0x%x: %v", obj.path, cu.Offset, err)
		return nil
	}
	line, found := p.lineAt(pc)
	fn, err := obj.function(cu, pc)
	if err != nil {
		log.Logf(2, "%v: failed to read functions at 0x%x: %v", obj.path, cu.Offset, err)
	}
	if fn == nil {
		if !found {
			return nil
		}
		return []SourceLoc{obj.lineLoc(line)}
	}
	return obj.unwindInlines(fn, pc, line, p.files)
}

func (obj *Object) lineLoc(line *dwarf.LineEntry) SourceLoc {
	loc := SourceLoc{
		Line:   uint32(line.Line),
		Column: uint32(line.Column),
	}
	if line.File != nil {
		loc.File = obj.strs.Do(line.File.Name)
	}
	return loc
}

func (obj *Object) unwindInlines(fn *dwarf.Entry, pc uint64, line *dwarf.LineEntry,
	files []*dwarf.LineFile) []SourceLoc {
	var stack []*dwarf.Entry
	if fn.Children {
		r := obj.dw.Reader()
		r.Seek(fn.Offset)
		if _, err := r.Next(); err == nil {
			findCoveringInlined(obj.dw, r, pc, &stack)
		}
	}
	stack = append(stack, fn)
	locs := make([]SourceLoc, 0, len(stack))
	for i, die := range stack {
		origin := obj.origin(die)
		loc := SourceLoc{Func: obj.strs.Do(dieName(die, origin))}
		if i == 0 {
			if line != nil {
				l := obj.lineLoc(line)
				loc.File, loc.Line, loc.Column = l.File, l.Line, l.Column
			} else {
				target := die
				if origin != nil {
					target = origin
				}
				loc.File = obj.fileName(files, target.Val(dwarf.AttrDeclFile))
			}
		} else {
			// The caller location is recorded on the inlined callee.
			prev := stack[i-1]
			loc.File = obj.fileName(files, prev.Val(dwarf.AttrCallFile))
			callLine, _ := prev.Val(dwarf.AttrCallLine).(int64)
			callCol, _ := prev.Val(dwarf.AttrCallColumn).(int64)
			loc.Line = uint32(callLine)
			loc.Column = uint32(callCol)
		}
		locs = append(locs, loc)
	}
	return locs
}

// fileName maps a file index attribute to a name.
// DWARF 5 file tables are 0-based, earlier versions have a nil 0th entry.
func (obj *Object) fileName(files []*dwarf.LineFile, attr any) string {
	idx, ok := attr.(int64)
	if !ok || idx < 0 || idx >= int64(len(files)) || files[idx] == nil {
		return ""
	}
	return obj.strs.Do(files[idx].Name)
}

// findCoveringInlined collects inlined subroutines covering pc, innermost first.
func findCoveringInlined(dw *dwarf.Data, r *dwarf.Reader, pc uint64, stack *[]*dwarf.Entry) bool {
	for {
		entry, err := r.Next()
		if err != nil || entry == nil || entry.Tag == 0 {
			return false
		}
		covers := false
		if ranges, err := dw.Ranges(entry); err == nil {
			for _, rng := range ranges {
				if pc >= rng[0] && pc < rng[1] {
					covers = true
					break
				}
			}
		}
		if !covers {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}
		if entry.Tag == dwarf.TagInlinedSubroutine {
			if entry.Children {
				findCoveringInlined(dw, r, pc, stack)
			}
			*stack = append(*stack, entry)
			return true
		}
		// Lexical blocks and the like.
		if entry.Children && findCoveringInlined(dw, r, pc, stack) {
			return true
		}
	}
}

// origin follows abstract_origin and specification references
// to the entry that carries the function name.
func (obj *Object) origin(die *dwarf.Entry) *dwarf.Entry {
	var origin *dwarf.Entry
	for i := 0; i < maxOriginDepth; i++ {
		ref, ok := die.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
		if !ok {
			ref, ok = die.Val(dwarf.AttrSpecification).(dwarf.Offset)
		}
		if !ok {
			break
		}
		r := obj.dw.Reader()
		r.Seek(ref)
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		origin, die = entry, entry
	}
	return origin
}

// dieName returns the raw (possibly mangled) function name, linkage name first.
func dieName(die, origin *dwarf.Entry) string {
	for _, attr := range []dwarf.Attr{dwarf.AttrLinkageName, dwarf.AttrName} {
		if name, ok := die.Val(attr).(string); ok {
			return name
		}
		if origin != nil {
			if name, ok := origin.Val(attr).(string); ok {
				return name
			}
		}
	}
	return ""
}
