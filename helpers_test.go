package wrapcache

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// widget is a test wrapper. It counts its own Close calls and the total
// number of closes seen by the factory that built it.
type widget struct {
	id     int
	closes atomic.Int32
	total  *atomic.Int32
	fail   error
	_      [32]byte // keep widgets out of the tiny allocator
}

func (w *widget) Close() error {
	w.closes.Add(1)
	if w.total != nil {
		w.total.Add(1)
	}
	return w.fail
}

// gadget is a second wrapper type sharing widget's behaviour.
type gadget struct {
	widget
}

type widgetFactory struct {
	calls  atomic.Int32
	closed atomic.Int32
	fail   error // returned by Close of built widgets
}

func (f *widgetFactory) widget(Handle) (*widget, error) {
	n := f.calls.Add(1)
	return &widget{id: int(n), total: &f.closed, fail: f.fail}, nil
}

func (f *widgetFactory) gadget(Handle) (*gadget, error) {
	n := f.calls.Add(1)
	g := &gadget{}
	g.id = int(n)
	g.total = &f.closed
	g.fail = f.fail
	return g, nil
}

var errFactory = errors.New("factory failed")

func failingFactory(Handle) (*widget, error) {
	return nil, errFactory
}

// forceGC runs enough collections for unreachable wrappers to be reclaimed
// and their weak pointers cleared.
func forceGC() {
	runtime.GC()
	runtime.GC()
}

// addDropped caches a widget for h through c and lets it become unreachable.
//
//go:noinline
func addDropped(t *testing.T, c *Cache, h Handle, f *widgetFactory) {
	t.Helper()
	_, err := GetOrAdd(c, h, f.widget)
	require.NoError(t, err)
}

// storeDropped does the same as addDropped directly on a store.
//
//go:noinline
func storeDropped(t *testing.T, s *store[widget, *widget], h Handle, f *widgetFactory) {
	t.Helper()
	_, err := s.GetOrAdd(h, f.widget)
	require.NoError(t, err)
}

// lookupDropped looks h up in s without keeping the result reachable.
//
//go:noinline
func lookupDropped(s *store[widget, *widget], h Handle) bool {
	_, ok := s.Lookup(h)
	return ok
}
