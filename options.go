package reactor

import "github.com/rs/zerolog"

// reactorOptions holds configuration resolved at Reactor construction.
type reactorOptions struct {
	logger             zerolog.Logger
	readBufferSize     int
	writeHighWaterMark int
}

// Option configures a Reactor instance.
type Option interface {
	apply(*reactorOptions)
}

type optionFunc func(*reactorOptions)

func (f optionFunc) apply(opts *reactorOptions) { f(opts) }

// WithLogger attaches a zerolog.Logger the reactor uses for structured
// diagnostics; it logs panics recovered from Exec work items. Sockets do not
// log. The default is a disabled (no-op) logger.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(opts *reactorOptions) {
		opts.logger = logger
	})
}

// WithReadBufferSize overrides the per-socket read scratch size. The spec's
// fixed default is 1024 bytes; this knob exists for callers that know their
// workload's typical message size.
func WithReadBufferSize(n int) Option {
	return optionFunc(func(opts *reactorOptions) {
		if n > 0 {
			opts.readBufferSize = n
		}
	})
}

// WithWriteHighWaterMark sets a soft limit, in bytes, on the per-socket
// pending-write buffer. When the buffer would grow past this mark, OnError
// is invoked with Kind IoFailed and hint "backpressure", but the write is
// still queued — this is advisory, not a hard cap, matching the spec's note
// that implementers SHOULD expose a configurable high-water mark while
// treating write as fundamentally unbounded. Zero (the default) disables
// the check.
func WithWriteHighWaterMark(n int) Option {
	return optionFunc(func(opts *reactorOptions) {
		if n >= 0 {
			opts.writeHighWaterMark = n
		}
	})
}

const defaultReadBufferSize = 1024

func resolveOptions(opts []Option) *reactorOptions {
	cfg := &reactorOptions{
		logger:         zerolog.Nop(),
		readBufferSize: defaultReadBufferSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
