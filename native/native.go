//go:build (darwin || linux || freebsd) && (amd64 || arm64)

// Package native allocates reference-counted blocks of C heap memory through
// purego, and wraps them as *Block values suitable for a wrapcache.Cache.
//
// A block is addressed by its wrapcache.Handle. Its reference count lives in
// a small header in front of the payload, the way reference-counted objects
// of native libraries keep theirs: Alloc returns a handle holding one
// reference, every Block built by Wrap holds one more, and the memory is
// freed when the last reference is released.
package native

import (
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/obinnaokechukwu/wrapcache"
	"github.com/obinnaokechukwu/wrapcache/internal/bindings"
)

var (
	// ErrInvalidSize indicates a non-positive block size.
	ErrInvalidSize = errors.New("wrapcache: block size must be positive")

	// ErrOutOfMemory indicates malloc failed.
	ErrOutOfMemory = errors.New("wrapcache: out of memory")

	// ErrNullHandle indicates a zero handle.
	ErrNullHandle = errors.New("wrapcache: null handle")

	// ErrReleased indicates the block has no references left.
	ErrReleased = errors.New("wrapcache: block already released")
)

// header precedes the payload of every block in C memory.
type header struct {
	refs atomic.Int64
	size int64
}

const headerSize = unsafe.Sizeof(header{})

// Function bindings - registered by Load
var (
	cMalloc func(size uintptr) unsafe.Pointer
	cFree   func(ptr unsafe.Pointer)
	cMemset func(ptr unsafe.Pointer, c int32, n uintptr) unsafe.Pointer

	registerOnce sync.Once
	registerErr  error
)

// Load loads the C runtime and registers the allocator functions.
// It is safe to call multiple times.
func Load() error {
	registerOnce.Do(func() {
		if err := bindings.Load(); err != nil {
			registerErr = err
			return
		}
		lib := bindings.LibC()
		purego.RegisterLibFunc(&cMalloc, lib, "malloc")
		purego.RegisterLibFunc(&cFree, lib, "free")
		purego.RegisterLibFunc(&cMemset, lib, "memset")
	})
	return registerErr
}

// IsLoaded returns true if Load has succeeded.
func IsLoaded() bool {
	return Load() == nil
}

// Alloc allocates a zeroed block with size payload bytes and returns its
// handle. The caller owns one reference and must drop it with Release.
func Alloc(size int) (wrapcache.Handle, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	if err := Load(); err != nil {
		return 0, err
	}

	total := headerSize + uintptr(size)
	p := cMalloc(total)
	if p == nil {
		return 0, ErrOutOfMemory
	}
	cMemset(p, 0, total)

	hdr := (*header)(p)
	hdr.refs.Store(1)
	hdr.size = int64(size)
	return wrapcache.Handle(uintptr(p)), nil
}

// Retain adds a reference to the block at h.
func Retain(h wrapcache.Handle) error {
	if h == 0 {
		return ErrNullHandle
	}
	hdr := headerOf(h)
	for {
		n := hdr.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if hdr.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference to the block at h and frees the block when it
// was the last one. h must not be used after its last reference is gone.
func Release(h wrapcache.Handle) error {
	if h == 0 {
		return ErrNullHandle
	}
	hdr := headerOf(h)
	for {
		n := hdr.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if hdr.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				cFree(unsafe.Pointer(hdr))
			}
			return nil
		}
	}
}

// Refs returns the reference count of the block at h.
func Refs(h wrapcache.Handle) int64 {
	if h == 0 {
		return 0
	}
	return headerOf(h).refs.Load()
}

// SizeOf returns the payload size of the block at h.
func SizeOf(h wrapcache.Handle) int {
	if h == 0 {
		return 0
	}
	return int(headerOf(h).size)
}

// Handles come from C malloc, so they address memory the Go collector neither
// tracks nor moves; turning one back into an unsafe.Pointer is sound even
// though vet cannot prove it.
func headerOf(h wrapcache.Handle) *header {
	return (*header)(unsafe.Pointer(uintptr(h)))
}

func payloadOf(h wrapcache.Handle) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(uintptr(h)), headerSize)
}
