package rootchain

// Options configures map behavior.
type Options struct {
	logger           Logger
	maxReaders       int // Maximum number of concurrent registered readers.
	retryLimit       int // CAS attempts before escalating to the exclusive lock.
	versionCacheSize int // Capacity of the version lookup cache. 0 disables it.
	appendThreshold  int // Buffered append bytes before a merge is suggested.
	store            Store
	reclaimer        Reclaimer
}

// DefaultOptions returns safe default configuration.
func DefaultOptions() Options {
	return Options{
		logger:           DiscardLogger{},
		maxReaders:       64,
		retryLimit:       3,
		versionCacheSize: 128,
		appendThreshold:  4096,
	}
}

// Option configures map options using the functional options pattern.
type Option func(*Options)

// WithLogger sets the logger used for contention and reclamation events.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}

// WithMaxReaders bounds the number of concurrently registered readers.
// BeginRead fails with ErrTooManyReaders beyond the bound.
func WithMaxReaders(n int) Option {
	return func(opts *Options) {
		opts.maxReaders = n
	}
}

// WithRetryLimit sets how many optimistic CAS attempts an update makes
// before escalating to the exclusive lock path.
func WithRetryLimit(n int) Option {
	return func(opts *Options) {
		opts.retryLimit = n
	}
}

// WithVersionCacheSize sets the capacity of the historical version lookup
// cache. Zero disables caching; lookups then always walk the chain.
func WithVersionCacheSize(n int) Option {
	return func(opts *Options) {
		opts.versionCacheSize = n
	}
}

// WithAppendThreshold sets how many buffered append bytes it takes before
// Append suggests a merge.
func WithAppendThreshold(bytes int) Option {
	return func(opts *Options) {
		opts.appendThreshold = bytes
	}
}

// WithStore attaches the flush collaborator consulted when removal
// resolution races a flush.
func WithStore(s Store) Option {
	return func(opts *Options) {
		opts.store = s
	}
}

// WithReclaimer attaches the collaborator that receives drained removal
// positions.
func WithReclaimer(r Reclaimer) Option {
	return func(opts *Options) {
		opts.reclaimer = r
	}
}
