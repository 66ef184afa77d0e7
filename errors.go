package wrapcache

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNilValue indicates a nil wrapper was offered to the cache.
	// A nil wrapper cannot be released, so it is never stored.
	ErrNilValue = errors.New("wrapcache: nil wrapper value")

	// ErrNilFactory indicates GetOrAdd was called without a factory.
	ErrNilFactory = errors.New("wrapcache: nil factory")
)

// ReleaseError reports a wrapper whose Close failed while the cache was
// releasing it.
type ReleaseError struct {
	Type   string // wrapper type name
	Handle Handle
	Err    error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("wrapcache: releasing %s at %#x: %v", e.Type, uintptr(e.Handle), e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}
