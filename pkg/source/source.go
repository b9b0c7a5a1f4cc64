// Package source provides the byte-stream transports that feed the
// capture pipeline: a live serial port, replayed capture files, and
// arbitrary readers. Every source delivers raw byte chunks over a
// channel in arrival order; decoding and framing happen downstream.
package source

import (
	"context"
	"time"

	"github.com/ajitpratap0/serialscope/pkg/compression"
)

// Source is an ordered byte-chunk transport.
type Source interface {
	// Open starts delivery. The stream runs until ctx is cancelled, the
	// underlying input is exhausted, or Close is called.
	Open(ctx context.Context) error

	// Chunks delivers byte chunks in arrival order and is closed when
	// the stream ends. Ownership of each chunk transfers to the
	// receiver.
	Chunks() <-chan []byte

	// Errors delivers the terminal stream error, if any (at most one).
	Errors() <-chan error

	// Close stops the stream and releases the transport. Idempotent.
	Close() error

	// Name identifies the source in logs.
	Name() string
}

// Leaser is implemented by sources holding an exclusive transport lease.
// The pipeline wires Release into the decoder's release hook so the
// lease is returned exactly once however the session ends.
type Leaser interface {
	Release() error
}

// Option configures a reader-backed source.
type Option func(*options)

type options struct {
	chunkSize int
	buffer    int
	pace      time.Duration
	algorithm compression.Algorithm
	explicit  bool
}

func defaultOptions() options {
	return options{
		chunkSize: 4096,
		buffer:    16,
		algorithm: compression.None,
	}
}

// WithChunkSize sets the per-read chunk buffer size in bytes.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithChannelBuffer sets the chunk channel capacity.
func WithChannelBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// WithPacing delays delivery by d after each chunk, simulating live
// arrival when replaying a capture.
func WithPacing(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pace = d
		}
	}
}

// WithDecompression decompresses the input with the given algorithm.
// FileSource otherwise infers the algorithm from the file extension.
func WithDecompression(a compression.Algorithm) Option {
	return func(o *options) {
		o.algorithm = a
		o.explicit = true
	}
}
