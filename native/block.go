//go:build (darwin || linux || freebsd) && (amd64 || arm64)

package native

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/obinnaokechukwu/wrapcache"
)

// Block is a Go wrapper holding one reference to a native block.
//
// Close drops the reference and is safe to call more than once. A Block that
// becomes unreachable without being closed drops its reference when the
// garbage collector reclaims it.
type Block struct {
	mu      sync.Mutex
	handle  wrapcache.Handle
	size    int
	closed  bool
	cleanup runtime.Cleanup
}

// Wrap builds a Block for an existing native block, taking a new reference
// to it. Its signature makes it usable directly as a wrapcache factory:
//
//	b, err := wrapcache.GetOrAdd(cache, h, native.Wrap)
func Wrap(h wrapcache.Handle) (*Block, error) {
	if err := Retain(h); err != nil {
		return nil, err
	}
	b := &Block{handle: h, size: SizeOf(h)}
	b.cleanup = runtime.AddCleanup(b, releaseHandle, h)
	return b, nil
}

// New allocates a native block of size bytes owned solely by the returned
// Block.
func New(size int) (*Block, error) {
	h, err := Alloc(size)
	if err != nil {
		return nil, err
	}
	b, err := Wrap(h)
	// Hand the allocation reference over to the Block (or free it on error).
	_ = Release(h)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func releaseHandle(h wrapcache.Handle) {
	_ = Release(h)
}

// Handle returns the native handle of the block.
func (b *Block) Handle() wrapcache.Handle {
	return b.handle
}

// Size returns the payload size in bytes.
func (b *Block) Size() int {
	return b.size
}

// Bytes returns the payload as a byte slice backed by native memory, or nil
// once the block is closed. The slice must not be used after Close, nor
// after the Block itself becomes unreachable.
func (b *Block) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	return unsafe.Slice((*byte)(payloadOf(b.handle)), b.size)
}

// Closed reports whether Close has been called.
func (b *Block) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close drops the Block's reference to the native block.
func (b *Block) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.cleanup.Stop()
	return Release(b.handle)
}
