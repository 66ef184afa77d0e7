package wrapcache

// Option configures a Cache.
type Option func(*options)

type options struct {
	onReleaseError func(*ReleaseError)
	retention      int
}

// WithReleaseErrorHandler sets a callback invoked for every wrapper whose
// Close fails during Teardown. Failures are logged either way.
func WithReleaseErrorHandler(fn func(*ReleaseError)) Option {
	return func(o *options) {
		o.onReleaseError = fn
	}
}

// WithRetention keeps the n wrappers of each type most recently returned by
// GetOrAdd or passed to Add strongly reachable, so that a wrapper dropped by
// the application is not reclaimed and rebuilt immediately when its handle is
// requested again. Lookup does not refresh the window.
// Retained wrappers are never closed by eviction. n <= 0 disables retention.
func WithRetention(n int) Option {
	return func(o *options) {
		o.retention = n
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
