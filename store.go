package wrapcache

import (
	"iter"
	"strconv"
	"sync"
	"weak"

	"github.com/untillpro/goutils/logger"
	"golang.org/x/sync/singleflight"
)

// store is a weak identity map for one wrapper type: it maps handles to
// wrappers of type P (always *V) without keeping the wrappers alive.
//
// An entry whose wrapper has been reclaimed stays in the map until the next
// GetOrAdd for the same handle replaces it, or until Prune removes it.
//
// A store is safe for concurrent use. Callers reach it only through the Cache
// router, so Teardown can never leave a store detached from its cache.
type store[V any, P Wrapper[V]] struct {
	name   string
	m      sync.Map // map[Handle]weak.Pointer[V]
	flight singleflight.Group
	retain *retention[P]
}

func newStore[V any, P Wrapper[V]](name string, o options) *store[V, P] {
	return &store[V, P]{
		name:   name,
		retain: newRetention[P](o.retention),
	}
}

// Name returns the wrapper type name the store was created for.
func (s *store[V, P]) Name() string {
	return s.name
}

// GetOrAdd returns the live wrapper for h. If there is none, or the entry is
// stale, factory is called to build a replacement, which is stored and
// returned.
//
// Concurrent misses on the same handle are collapsed into a single factory
// call; callers for other handles never wait on each other. If factory fails
// its error is returned unchanged and nothing is stored.
func (s *store[V, P]) GetOrAdd(h Handle, factory func(Handle) (P, error)) (P, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if v, ok := s.Lookup(h); ok {
		s.retain.keep(h, v)
		return v, nil
	}

	r, err, _ := s.flight.Do(flightKey(h), func() (any, error) {
		return s.create(h, factory)
	})
	if err != nil {
		return nil, err
	}
	v := r.(P)
	s.retain.keep(h, v)
	return v, nil
}

// create runs inside the per-handle flight, so for a given handle at most one
// create is in progress at a time.
func (s *store[V, P]) create(h Handle, factory func(Handle) (P, error)) (P, error) {
	cur, found := s.load(h)
	if found {
		if v := cur.Value(); v != nil {
			return P(v), nil
		}
	}

	v, err := factory(h)
	if err != nil {
		return nil, err
	}
	if (*V)(v) == nil {
		return nil, ErrNilValue
	}

	wp := weak.Make((*V)(v))
	for {
		if found {
			if s.m.CompareAndSwap(h, cur, wp) {
				if logger.IsVerbose() {
					logger.Verbose("wrapcache:", s.name, "replaced stale entry for", formatHandle(h))
				}
				return v, nil
			}
		} else if _, loaded := s.m.LoadOrStore(h, wp); !loaded {
			return v, nil
		}

		// Add or Remove changed h while the factory ran.
		cur, found = s.load(h)
		if found {
			if w := cur.Value(); w != nil {
				if logger.IsVerbose() {
					logger.Verbose("wrapcache:", s.name, "dropped new wrapper for", formatHandle(h), "in favour of one added concurrently")
				}
				return P(w), nil
			}
		}
	}
}

// Add stores v for h, replacing any previous entry. The replaced wrapper is
// not closed; that is up to the caller.
func (s *store[V, P]) Add(h Handle, v P) error {
	if (*V)(v) == nil {
		return ErrNilValue
	}
	s.m.Store(h, weak.Make((*V)(v)))
	s.retain.keep(h, v)
	return nil
}

// Remove deletes the entry for h and reports whether there was one.
// The removed wrapper is not closed.
func (s *store[V, P]) Remove(h Handle) bool {
	_, ok := s.m.LoadAndDelete(h)
	s.retain.forget(h)
	return ok
}

// Lookup returns the live wrapper for h, if any. It never calls a factory and
// does not move h within the retention window.
func (s *store[V, P]) Lookup(h Handle) (P, bool) {
	cur, ok := s.load(h)
	if !ok {
		return nil, false
	}
	v := cur.Value()
	if v == nil {
		return nil, false
	}
	return P(v), true
}

// All returns an iterator over the store entries, stale ones included.
// Each call walks the entries present at that time, in no particular order;
// entries added or removed during the walk may or may not be seen.
func (s *store[V, P]) All() iter.Seq2[Handle, weak.Pointer[V]] {
	return func(yield func(Handle, weak.Pointer[V]) bool) {
		s.m.Range(func(key, value any) bool {
			return yield(key.(Handle), value.(weak.Pointer[V]))
		})
	}
}

// Len returns the number of entries, stale ones included.
func (s *store[V, P]) Len() int {
	n := 0
	for range s.All() {
		n++
	}
	return n
}

// Prune deletes stale entries and returns how many were deleted.
func (s *store[V, P]) Prune() int {
	n := 0
	for h, wp := range s.All() {
		if wp.Value() == nil && s.m.CompareAndDelete(h, wp) {
			n++
		}
	}
	return n
}

// Clear deletes all entries without closing any wrapper.
func (s *store[V, P]) Clear() {
	s.m.Clear()
	s.retain.reset()
}

// releaseLive closes every wrapper that is still alive. Dead entries are
// skipped. A failing Close is reported and does not stop the walk.
func (s *store[V, P]) releaseLive(report func(*ReleaseError)) (released, failed int) {
	for h, wp := range s.All() {
		v := wp.Value()
		if v == nil {
			continue
		}
		released++
		if err := P(v).Close(); err != nil {
			failed++
			report(&ReleaseError{Type: s.name, Handle: h, Err: err})
		}
	}
	return released, failed
}

func (s *store[V, P]) retained() int {
	return s.retain.len()
}

func (s *store[V, P]) load(h Handle) (weak.Pointer[V], bool) {
	e, ok := s.m.Load(h)
	if !ok {
		return weak.Pointer[V]{}, false
	}
	return e.(weak.Pointer[V]), true
}

func flightKey(h Handle) string {
	return strconv.FormatUint(uint64(h), 16)
}

func formatHandle(h Handle) string {
	return "0x" + flightKey(h)
}
