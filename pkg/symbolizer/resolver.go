// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"context"
	"iter"
	"time"

	"github.com/google/stacktrace/pkg/loader"
	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/osutil"
	"github.com/google/stacktrace/pkg/stacktrace"
	"github.com/google/stacktrace/pkg/stat"
	"golang.org/x/sync/errgroup"
)

// DefaultInlineLimit bounds the inlined call chain reported for a single frame.
// Malformed debug info may otherwise produce unbounded chains.
const DefaultInlineLimit = 64

var (
	statResolves = stat.New("symbolizer resolves", "Frames resolved to source locations",
		stat.Rate{}, stat.Prometheus("stacktrace_resolves"))
	statResolveLatency = stat.New("symbolizer resolve latency", "Time to resolve one frame (us)",
		stat.Distribution{})
	statInlined = stat.New("symbolizer inlined frames", "Inlined calls found while resolving frames")
)

// objectFile is the part of Object used by Resolver.
type objectFile interface {
	Loaded() bool
	findNearestLine(addr, base uint64) (lineResult, bool)
}

// Resolver turns raw frames into ResolvedTrace.
// It is safe for concurrent use as long as the underlying cache is alive.
type Resolver struct {
	loader      loader.Loader
	mode        Mode
	inlineLimit int
	get         func(path string) objectFile
	self        func() osutil.Process
}

type ResolverOption func(*Resolver)

// WithLoader replaces the default /proc/self/maps based loader.
func WithLoader(l loader.Loader) ResolverOption {
	return func(r *Resolver) {
		r.loader = l
	}
}

func WithMode(mode Mode) ResolverOption {
	return func(r *Resolver) {
		r.mode = mode
	}
}

func WithInlineLimit(limit int) ResolverOption {
	return func(r *Resolver) {
		r.inlineLimit = max(limit, 0)
	}
}

// NewResolver creates a resolver that loads binaries through cache.
// Without a cache there is nothing to load binaries into,
// so the resolver works in ModeLoaderOnly regardless of options.
func NewResolver(cache *ObjectCache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		mode:        ModeFull,
		inlineLimit: DefaultInlineLimit,
		self:        osutil.Self,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = loader.NewProcMaps()
	}
	if cache == nil {
		if r.mode != ModeLoaderOnly {
			log.Logf(1, "no object cache, only loader symbols will be reported")
		}
		r.mode = ModeLoaderOnly
	}
	if r.mode == ModeFull {
		r.get = func(path string) objectFile {
			return cache.Get(path)
		}
	}
	return r
}

func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve never fails: whatever could not be found is left empty.
func (r *Resolver) Resolve(frame stacktrace.Frame) ResolvedTrace {
	start := time.Now()
	res := r.resolve(frame)
	statResolves.Add(1)
	statResolveLatency.Add(int(time.Since(start).Microseconds()))
	statInlined.Add(len(res.Inlined))
	return res
}

func (r *Resolver) resolve(frame stacktrace.Frame) ResolvedTrace {
	res := ResolvedTrace{Frame: frame}
	addr := uint64(frame.PC)
	info, ok := r.loader.Lookup(addr)
	if !ok {
		return res
	}
	if info.SymName != "" {
		res.ObjectFunc = Demangle(info.SymName)
	}
	if info.Path == "" {
		return res
	}
	res.Object = info.Path
	if r.mode == ModeLoaderOnly {
		return res
	}
	obj := r.loadObject(info)
	if obj == nil {
		return res
	}
	found, ok := obj.findNearestLine(addr-1, info.Base)
	if ok {
		// Return addresses point past the call instruction,
		// the call itself is what the user wants to see.
		res.PC--
	} else if found, ok = obj.findNearestLine(addr, info.Base); !ok {
		return res
	}
	res.Source = demangleLoc(found.loc)
	if res.ObjectFunc == "" {
		res.ObjectFunc = res.Source.Func
	}
	res.Inlined = expandInlined(found.inliners, r.inlineLimit)
	return res
}

// objectPaths returns files the module can be read from, in order of preference.
// The kernel keeps a link to the running executable, so it stays readable
// even if it was replaced on disk since start. Other replaced modules are lost.
func (r *Resolver) objectPaths(info loader.Info) []string {
	if exe := r.self().Exe; exe != "" && info.Path == exe {
		if info.Deleted {
			return []string{osutil.SelfExe}
		}
		return []string{info.Path, osutil.SelfExe}
	}
	if info.Deleted {
		return nil
	}
	return []string{info.Path}
}

func (r *Resolver) loadObject(info loader.Info) objectFile {
	paths := r.objectPaths(info)
	if len(paths) == 0 {
		log.Logf(2, "%v was replaced on disk, not reading it", info.Path)
	}
	for _, path := range paths {
		if obj := r.get(path); obj.Loaded() {
			return obj
		}
	}
	return nil
}

// ResolveTrace lazily resolves frames of tr, innermost first or, if reverse, outermost first.
func (r *Resolver) ResolveTrace(tr *stacktrace.Trace, reverse bool) iter.Seq[ResolvedTrace] {
	frames := tr.All()
	if reverse {
		frames = tr.Backward()
	}
	return func(yield func(ResolvedTrace) bool) {
		for _, frame := range frames {
			if !yield(r.Resolve(frame)) {
				return
			}
		}
	}
}

// ResolveAll resolves all frames of tr using up to parallelism goroutines.
// The result is in capture order. Only context cancellation is reported as an error.
func (r *Resolver) ResolveAll(ctx context.Context, tr *stacktrace.Trace, parallelism int) ([]ResolvedTrace, error) {
	res := make([]ResolvedTrace, tr.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallelism, 1))
	for i, frame := range tr.All() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res[i] = r.Resolve(frame)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// expandInlined drains it, stopping after limit locations.
// The result is never nil.
func expandInlined(it inlinerIter, limit int) []SourceLoc {
	locs := []SourceLoc{}
	if it == nil {
		return locs
	}
	for {
		loc, ok := it.next()
		if !ok {
			return locs
		}
		if len(locs) >= limit {
			log.Logf(1, "inlined call chain is longer than %v, truncating", limit)
			return locs
		}
		locs = append(locs, demangleLoc(loc))
	}
}

func demangleLoc(loc SourceLoc) SourceLoc {
	loc.Func = Demangle(loc.Func)
	return loc
}
