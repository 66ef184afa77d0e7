// Package wrapcache maps native handles to Go wrapper objects without keeping
// the wrappers alive.
//
// Code that wraps objects owned by a native library usually wants exactly one
// Go wrapper per native object: wrapping the same pointer twice produces two
// wrappers that disagree about state and both try to release it. A Cache keeps
// one weak identity map per wrapper type, so a handle resolves to the same
// wrapper for as long as the application holds on to it, and the wrapper can
// be garbage collected as soon as the application lets go.
//
// Wrappers are pointer types whose Close releases their native resources and
// is safe to call more than once. Teardown closes every wrapper still alive;
// call it once at exit, before the native library itself is shut down.
package wrapcache

import (
	"io"
	"reflect"
	"sync"

	"github.com/untillpro/goutils/logger"
)

// Handle is the raw address of a native object. The cache uses it only as a
// map key and never dereferences it.
type Handle uintptr

// Wrapper is the constraint for cached values: a pointer to V with an
// idempotent Close.
type Wrapper[V any] interface {
	*V
	io.Closer
}

// Cache routes each wrapper type to its own store. The zero value is not
// usable; create caches with New.
//
// All methods except Teardown are safe for concurrent use.
type Cache struct {
	opts   options
	stores sync.Map // map[reflect.Type]storeOps
}

// storeOps is the type-erased part of a store used by Teardown, Prune and
// Stats.
type storeOps interface {
	Name() string
	Len() int
	Clear()
	Prune() int
	releaseLive(report func(*ReleaseError)) (released, failed int)
	retained() int
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	return &Cache{opts: buildOptions(opts)}
}

// storeFor returns the store for wrapper type P, creating it on first use.
// Concurrent first uses of the same type all get the same store.
func storeFor[V any, P Wrapper[V]](c *Cache) *store[V, P] {
	t := reflect.TypeFor[V]()
	if s, ok := c.stores.Load(t); ok {
		return s.(*store[V, P])
	}
	s, loaded := c.stores.LoadOrStore(t, newStore[V, P](t.String(), c.opts))
	if !loaded && logger.IsVerbose() {
		logger.Verbose("wrapcache: created store for", t.String())
	}
	return s.(*store[V, P])
}

// existing returns the store for P without creating one.
func existing[V any, P Wrapper[V]](c *Cache) (*store[V, P], bool) {
	s, ok := c.stores.Load(reflect.TypeFor[V]())
	if !ok {
		return nil, false
	}
	return s.(*store[V, P]), true
}

// GetOrAdd returns the live wrapper of type P for h, calling factory to build
// and cache one if there is none. Concurrent misses on the same handle share
// one factory call. If factory fails its error is returned unchanged and
// nothing is cached.
func GetOrAdd[V any, P Wrapper[V]](c *Cache, h Handle, factory func(Handle) (P, error)) (P, error) {
	return storeFor[V, P](c).GetOrAdd(h, factory)
}

// Add caches v as the wrapper of type P for h, replacing any previous one
// without closing it.
func Add[V any, P Wrapper[V]](c *Cache, h Handle, v P) error {
	return storeFor[V, P](c).Add(h, v)
}

// Remove drops the wrapper of type P cached for h and reports whether there
// was one. The wrapper is not closed.
func Remove[V any, P Wrapper[V]](c *Cache, h Handle) bool {
	s, ok := existing[V, P](c)
	if !ok {
		return false
	}
	return s.Remove(h)
}

// Lookup returns the live wrapper of type P for h, if any. It never calls a
// factory and does not refresh the retention window.
func Lookup[V any, P Wrapper[V]](c *Cache, h Handle) (P, bool) {
	s, ok := existing[V, P](c)
	if !ok {
		return nil, false
	}
	return s.Lookup(h)
}

// Teardown closes every cached wrapper that is still alive, across all types,
// then empties the cache. Wrappers already reclaimed are skipped. A failing
// Close is logged, passed to the handler set with WithReleaseErrorHandler,
// and does not stop the remaining releases.
//
// The cache stays usable afterwards and behaves as if newly created.
//
// Teardown must not run concurrently with any other use of the cache. It is
// meant to be called once at exit, before the native library is shut down.
func (c *Cache) Teardown() {
	var types, released, failed int
	c.stores.Range(func(_, value any) bool {
		s := value.(storeOps)
		r, f := s.releaseLive(c.reportRelease)
		s.Clear()
		types++
		released += r
		failed += f
		return true
	})
	c.stores.Clear()

	if logger.IsVerbose() {
		logger.Verbose("wrapcache: teardown released", released, "wrappers of", types, "types,", failed, "failed")
	}
}

// Prune deletes the entries of reclaimed wrappers across all types and
// returns how many were deleted.
func (c *Cache) Prune() int {
	n := 0
	c.stores.Range(func(_, value any) bool {
		n += value.(storeOps).Prune()
		return true
	})
	if n > 0 && logger.IsVerbose() {
		logger.Verbose("wrapcache: pruned", n, "stale entries")
	}
	return n
}

func (c *Cache) reportRelease(err *ReleaseError) {
	logger.Error(err.Error())
	if c.opts.onReleaseError != nil {
		c.opts.onReleaseError(err)
	}
}

// Stats describes the cache contents.
type Stats struct {
	Types    int // wrapper types with a store
	Entries  int // entries across all stores, stale ones included
	Retained int // wrappers pinned by the retention window
}

// Stats returns a snapshot of the cache size.
func (c *Cache) Stats() Stats {
	var st Stats
	c.stores.Range(func(_, value any) bool {
		s := value.(storeOps)
		st.Types++
		st.Entries += s.Len()
		st.Retained += s.retained()
		return true
	})
	return st
}
