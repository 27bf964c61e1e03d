// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package loader answers "which loaded module owns this address" for the running process,
// the same question dladdr answers for the dynamic loader.
package loader

import (
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/osutil"
	"github.com/prometheus/procfs"
)

// Info describes the module owning an address.
type Info struct {
	// Path of the file backing the module as reported by the kernel.
	Path string
	// Deleted is set if the kernel reports that the mapped file was removed or replaced,
	// the file at Path (if any) is not the one that is mapped.
	Deleted bool
	// Base is the runtime address of file offset 0 (start of the lowest mapping minus its file offset).
	Base uint64
	// SymName is the loader-visible name of the function containing the address (may be empty).
	SymName string
	// SymAddr is the entry address of SymName.
	SymAddr uint64
}

type Loader interface {
	// Lookup returns the owning module for addr. False means the address
	// does not belong to any file-backed mapping.
	Lookup(addr uint64) (Info, bool)
}

// ProcMaps is a Loader backed by /proc/self/maps.
// The mappings are read lazily and re-read once on a miss,
// since shared libraries may be loaded after the snapshot was taken.
type ProcMaps struct {
	mu       sync.RWMutex
	mappings []mapping
	read     func() ([]*procfs.ProcMap, error)
	symbol   func(addr uint64) (string, uint64)
}

type mapping struct {
	start   uint64
	end     uint64
	path    string
	file    osutil.FileID
	deleted bool
	base    uint64
}

type Option func(*ProcMaps)

// WithMapsReader replaces the source of memory mappings.
func WithMapsReader(read func() ([]*procfs.ProcMap, error)) Option {
	return func(pm *ProcMaps) {
		pm.read = read
	}
}

// WithSymbolizer replaces the source of loader-visible symbol names.
func WithSymbolizer(symbol func(addr uint64) (string, uint64)) Option {
	return func(pm *ProcMaps) {
		pm.symbol = symbol
	}
}

func NewProcMaps(opts ...Option) *ProcMaps {
	pm := &ProcMaps{
		read:   readSelfMaps,
		symbol: runtimeSymbol,
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

func (pm *ProcMaps) Lookup(addr uint64) (Info, bool) {
	m, ok := pm.find(addr)
	if !ok {
		if err := pm.Refresh(); err != nil {
			log.Logf(1, "failed to read memory mappings: %v", err)
			return Info{}, false
		}
		if m, ok = pm.find(addr); !ok {
			return Info{}, false
		}
	}
	info := Info{
		Path:    m.path,
		Deleted: m.deleted,
		Base:    m.base,
	}
	info.SymName, info.SymAddr = pm.symbol(addr)
	return info, true
}

// Refresh re-reads the memory mappings.
func (pm *ProcMaps) Refresh() error {
	maps, err := pm.read()
	if err != nil {
		return err
	}
	mappings := buildMappings(maps)
	pm.mu.Lock()
	pm.mappings = mappings
	pm.mu.Unlock()
	return nil
}

func (pm *ProcMaps) find(addr uint64) (mapping, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	idx := sort.Search(len(pm.mappings), func(i int) bool {
		return pm.mappings[i].end > addr
	})
	if idx < len(pm.mappings) && pm.mappings[idx].start <= addr {
		return pm.mappings[idx], true
	}
	return mapping{}, false
}

const deletedSuffix = " (deleted)"

// buildMappings keeps file-backed mappings sorted by address
// and computes load base of every module.
// Modules are told apart by file identity, a path may be mapped twice
// if the file was replaced between two loads.
func buildMappings(maps []*procfs.ProcMap) []mapping {
	bases := make(map[osutil.FileID]uint64)
	var mappings []mapping
	for _, m := range maps {
		path, deleted := strings.CutSuffix(m.Pathname, deletedSuffix)
		if path == "" || strings.HasPrefix(path, "[") || m.Inode == 0 {
			// Anonymous memory, [heap], [stack], [vdso], etc.
			continue
		}
		file := osutil.FileID{Dev: m.Dev, Inode: m.Inode}
		start, end := uint64(m.StartAddr), uint64(m.EndAddr)
		base := start - uint64(m.Offset)
		if prev, ok := bases[file]; !ok || base < prev {
			bases[file] = base
		}
		mappings = append(mappings, mapping{
			start:   start,
			end:     end,
			path:    path,
			file:    file,
			deleted: deleted,
		})
	}
	for i := range mappings {
		mappings[i].base = bases[mappings[i].file]
	}
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].start < mappings[j].start
	})
	return mappings
}

func readSelfMaps() ([]*procfs.ProcMap, error) {
	proc, err := procfs.Self()
	if err != nil {
		return nil, err
	}
	return proc.ProcMaps()
}

// runtimeSymbol consults the Go runtime symbol table, which plays the role
// of the dynamic symbol table for Go code. Foreign code yields no name.
func runtimeSymbol(addr uint64) (string, uint64) {
	fn := runtime.FuncForPC(uintptr(addr))
	if fn == nil {
		return "", 0
	}
	return fn.Name(), uint64(fn.Entry())
}
