package engine

import (
	"time"

	"github.com/jamesainslie/mus/pkg/mus/catalog"
	"github.com/jamesainslie/mus/pkg/mus/digest"
	"github.com/jamesainslie/mus/pkg/mus/filter"
	"github.com/jamesainslie/mus/pkg/mus/logging"
	"github.com/jamesainslie/mus/pkg/mus/manifest"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	algorithm  digest.Algorithm
	bufferSize int
	extension  string
	listener   Listener
	filter     *filter.Filter
	hasher     catalog.StreamHasher
	clock      func() time.Time
	logger     *logging.Logger
}

func defaultOptions() options {
	return options{
		algorithm:  digest.MD5,
		bufferSize: digest.DefaultBufferSize,
		extension:  manifest.DefaultExtension,
		listener:   ListenerFuncs{},
		clock:      time.Now,
		logger:     logging.Get("engine"),
	}
}

// WithAlgorithm sets the algorithm for generated digests. Verification
// always uses the algorithm implied by each expected digest.
func WithAlgorithm(alg digest.Algorithm) Option {
	return func(o *options) {
		o.algorithm = alg
	}
}

// WithBufferSize sets the read size used while hashing.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithManifestExtension sets the extension used to discover manifests in
// directories given to ForManifests.
func WithManifestExtension(ext string) Option {
	return func(o *options) {
		if ext != "" {
			o.extension = ext
		}
	}
}

// WithListener registers the lifecycle listener.
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listener = l
		}
	}
}

// WithFilter sets the include/exclude filter applied while walking.
func WithFilter(f *filter.Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithHasher replaces the stream hasher. WithBufferSize has no effect then.
func WithHasher(h catalog.StreamHasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithClock sets the time source used for progress timing.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
