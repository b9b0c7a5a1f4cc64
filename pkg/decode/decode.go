// Package decode turns an ordered stream of raw byte chunks into a stream
// of UTF-8 text chunks using incremental decoding with replacement-character
// substitution.
//
// # Overview
//
// A serial device writes bytes with no regard for character boundaries: a
// multi-byte UTF-8 sequence routinely arrives split across two reads. The
// Decoder carries that partial state between chunks, so the reassembled
// character decodes correctly no matter how the input was chunked. Invalid
// byte sequences are substituted with U+FFFD rather than surfaced as
// errors; decoding a live stream never fails mid-flight.
//
// A Decoder is single-use: it holds incremental state (the pending partial
// sequence), so restarting means constructing a new one.
//
// # Basic Usage
//
//	dec := decode.NewDecoder(decode.WithRelease(port.Release))
//	stream, err := dec.Decode(ctx, chunks)
//	if err != nil {
//	    return err
//	}
//	for text := range stream.Chunks {
//	    // feed the line framer
//	}
//
// The release hook runs exactly once, whether the stream ends normally,
// the context is cancelled, or the owner calls Close.
package decode

import (
	"context"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/serialscope/pkg/errors"
)

// TextStream delivers decoded text chunks. Chunks is closed when the input
// is exhausted or the context is cancelled. No chunk is ever empty.
type TextStream struct {
	Chunks <-chan string
}

// Decoder incrementally decodes byte chunks to UTF-8 text. Construct with
// NewDecoder; the zero value is not usable.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte // undecoded tail of the previous chunk
	src     []byte // scratch: pending + current chunk
	dst     []byte // scratch: decode output
	buffer  int

	release    func() error
	releaseErr error
	once       sync.Once

	mu      sync.Mutex
	started bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithRelease sets the resource release hook, typically the transport's
// lease release. It is invoked exactly once when the decode goroutine
// exits or Close is called, whichever comes first.
func WithRelease(fn func() error) Option {
	return func(d *Decoder) { d.release = fn }
}

// WithBuffer sets the output channel capacity (default unbuffered).
func WithBuffer(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// NewDecoder creates a Decoder with fresh incremental state.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		utf8: unicode.UTF8.NewDecoder(),
		dst:  make([]byte, 4096),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode consumes byte chunks in arrival order and returns the decoded
// text stream. It returns an error if called more than once. The consumer
// stops the decode by cancelling ctx; the input owner stops it by closing
// the chunks channel. Either way the release hook runs exactly once.
func (d *Decoder) Decode(ctx context.Context, chunks <-chan []byte) (*TextStream, error) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil, errors.New(errors.ErrorTypeValidation, "decoder already started; construct a new one to restart")
	}
	d.started = true
	d.mu.Unlock()

	out := make(chan string, d.buffer)
	stream := &TextStream{Chunks: out}

	go func() {
		defer close(out)
		defer d.doRelease()

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					// Input exhausted: flush any residual bytes,
					// substituting U+FFFD for an incomplete tail.
					if text := d.decodeChunk(nil, true); text != "" {
						select {
						case out <- text:
						case <-ctx.Done():
						}
					}
					return
				}
				if len(chunk) == 0 {
					continue
				}
				text := d.decodeChunk(chunk, false)
				if text == "" {
					continue
				}
				select {
				case out <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return stream, nil
}

// Close releases the underlying resource without waiting for the decode
// goroutine. Safe to call any number of times; the hook still runs only
// once. Returns the hook's error, if any.
func (d *Decoder) Close() error {
	d.doRelease()
	return d.releaseErr
}

func (d *Decoder) doRelease() {
	d.once.Do(func() {
		if d.release != nil {
			d.releaseErr = d.release()
		}
	})
}

// decodeChunk decodes pending bytes plus one chunk. With atEOF set it
// consumes everything, substituting replacements for an incomplete tail;
// otherwise the tail is kept pending for the next chunk.
func (d *Decoder) decodeChunk(chunk []byte, atEOF bool) string {
	d.src = append(d.src[:0], d.pending...)
	d.src = append(d.src, chunk...)
	d.pending = d.pending[:0]

	src := d.src
	var out []byte
	for len(src) > 0 {
		nDst, nSrc, err := d.utf8.Transform(d.dst, src, atEOF)
		out = append(out, d.dst[:nDst]...)
		src = src[nSrc:]

		switch err {
		case nil:
			return string(out)
		case transform.ErrShortDst:
			// Output buffer filled; keep draining.
		case transform.ErrShortSrc:
			// Incomplete multi-byte sequence at the chunk boundary;
			// hold it until more bytes arrive.
			d.pending = append(d.pending, src...)
			return string(out)
		default:
			// The UTF-8 decoder substitutes rather than fails; any
			// other error would be a transformer contract change.
			return string(out)
		}
	}
	return string(out)
}
