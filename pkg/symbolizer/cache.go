// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"strings"
	"sync"

	"github.com/google/stacktrace/pkg/log"
	"github.com/google/stacktrace/pkg/osutil"
	"github.com/google/stacktrace/pkg/stat"
	"golang.org/x/sync/singleflight"
)

// DefaultLineCacheSize is the number of compile units per object
// whose line tables and function indices are kept in memory.
const DefaultLineCacheSize = 256

var (
	statObjectsLoaded = stat.New("symbolizer objects loaded", "Binaries parsed by object caches",
		stat.Prometheus("stacktrace_objects_loaded"))
	statLoadFailures = stat.New("symbolizer object load failures", "Binaries that could not be parsed",
		stat.Prometheus("stacktrace_object_load_failures"))
	statCacheHits = stat.New("symbolizer object cache hits", "Object lookups served from cache",
		stat.Rate{})
)

// ObjectCache holds parsed binaries keyed by absolute path.
// Every path is opened at most once, failures are remembered as well.
// The cache is safe for concurrent use and releases all objects on Close.
type ObjectCache struct {
	objects   sync.Map // string -> *Object
	group     singleflight.Group
	strs      Interner
	lineCache int
	open      func(path string, lineCacheSize int, strs *Interner) (*Object, error)
	closeOnce sync.Once
}

type CacheOption func(*ObjectCache)

// WithLineCacheSize bounds the number of compile units whose parsed
// line tables are retained per object.
func WithLineCacheSize(size int) CacheOption {
	return func(c *ObjectCache) {
		c.lineCache = size
	}
}

func NewObjectCache(opts ...CacheOption) *ObjectCache {
	c := &ObjectCache{
		lineCache: DefaultLineCacheSize,
		open:      openObject,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.lineCache < 1 {
		c.lineCache = 1
	}
	return c
}

// Get returns the object for path, opening and parsing it on first use.
// The result is never nil, but may be not Loaded.
func (c *ObjectCache) Get(path string) *Object {
	key := osutil.Abs(path)
	if obj, ok := c.objects.Load(key); ok {
		statCacheHits.Add(1)
		return obj.(*Object)
	}
	res, _, _ := c.group.Do(key, func() (any, error) {
		if obj, ok := c.objects.Load(key); ok {
			return obj, nil
		}
		obj, err := c.open(key, c.lineCache, &c.strs)
		if err != nil {
			log.Logf(1, "failed to load %v: %v", key, err)
			statLoadFailures.Add(1)
			obj = &Object{path: key}
		} else {
			statObjectsLoaded.Add(1)
		}
		c.objects.Store(key, obj)
		return obj, nil
	})
	return res.(*Object)
}

// Len returns the number of cached objects, including failed ones.
func (c *ObjectCache) Len() int {
	n := 0
	c.objects.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close releases all objects. The cache must not be used afterwards.
func (c *ObjectCache) Close() {
	c.closeOnce.Do(func() {
		c.objects.Range(func(key, obj any) bool {
			obj.(*Object).close()
			c.objects.Delete(key)
			return true
		})
	})
}

// Interner allows to intern/deduplicate strings.
// Interner.Do semantically returns the same string, but physically it will point
// to an existing string with the same contents (if there was one passed to Do in the past).
// Interned strings are also "cloned", that is, if the passed string points to a large
// buffer, it won't after interning (and won't prevent GC'ing of the large buffer).
// The type is safe for concurrent use.
type Interner struct {
	m sync.Map
}

func (in *Interner) Do(s string) string {
	if s == "" {
		return ""
	}
	if interned, ok := in.m.Load(s); ok {
		return interned.(string)
	}
	s = strings.Clone(s)
	interned, _ := in.m.LoadOrStore(s, s)
	return interned.(string)
}
