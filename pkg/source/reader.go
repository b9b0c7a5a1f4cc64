package source

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ajitpratap0/serialscope/pkg/compression"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
	"github.com/ajitpratap0/serialscope/pkg/pool"
)

// pump reads an io.Reader into the chunk channel. Shared by the reader
// and file sources.
type pump struct {
	label  string // metric label, low cardinality
	size   int
	pace   time.Duration
	chunks chan []byte
	errs   chan error
}

func newPump(label string, opts options) *pump {
	return &pump{
		label:  label,
		size:   opts.chunkSize,
		pace:   opts.pace,
		chunks: make(chan []byte, opts.buffer),
		errs:   make(chan error, 1),
	}
}

// run drains r until EOF, a read error, or cancellation. Each delivered
// chunk is freshly allocated; ownership transfers to the receiver.
func (p *pump) run(ctx context.Context, r io.Reader) {
	defer close(p.chunks)
	defer close(p.errs)

	buf := pool.Buffers.Get(p.size)
	defer pool.Buffers.Put(buf)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := r.Read(buf[:cap(buf)])
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case p.chunks <- chunk:
				metrics.BytesRead.WithLabelValues(p.label).Add(float64(n))
			case <-ctx.Done():
				return
			}

			if p.pace > 0 {
				select {
				case <-time.After(p.pace):
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				select {
				case p.errs <- errors.Wrap(err, errors.ErrorTypeTransport, "read failed"):
				default:
				}
			}
			return
		}
	}
}

// decompressReader adapts the push-based DecompressStream to a pull
// reader through a pipe. Closing the returned reader stops the copy.
func decompressReader(r io.Reader, algorithm compression.Algorithm) (io.ReadCloser, error) {
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algorithm})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build decompressor")
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(comp.DecompressStream(pw, r))
	}()
	return pr, nil
}

// ReaderSource streams any io.Reader, for stdin capture and tests. The
// reader stays owned by the caller; Close stops delivery but leaves the
// reader open.
type ReaderSource struct {
	name   string
	reader io.Reader
	opts   options

	pump   *pump
	pipe   io.ReadCloser // non-nil when decompressing
	cancel context.CancelFunc
	opened bool
	once   sync.Once
}

// NewReaderSource wraps r under the given display name.
func NewReaderSource(name string, r io.Reader, opts ...Option) *ReaderSource {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ReaderSource{
		name:   name,
		reader: r,
		opts:   o,
		pump:   newPump("reader", o),
	}
}

// Name identifies the source in logs.
func (s *ReaderSource) Name() string { return "reader:" + s.name }

// Open starts streaming the reader.
func (s *ReaderSource) Open(ctx context.Context) error {
	if s.opened {
		return errors.New(errors.ErrorTypeValidation, "source already open")
	}
	s.opened = true

	r := s.reader
	if s.opts.algorithm != compression.None {
		pr, err := decompressReader(r, s.opts.algorithm)
		if err != nil {
			return err
		}
		s.pipe = pr
		r = pr
	}

	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.pump.run(rctx, r)
	return nil
}

// Chunks delivers byte chunks. Valid once Open has been called.
func (s *ReaderSource) Chunks() <-chan []byte { return s.pump.chunks }

// Errors delivers the terminal stream error, if any.
func (s *ReaderSource) Errors() <-chan error { return s.pump.errs }

// Close stops delivery. A read blocked on the underlying reader keeps
// the pump goroutine alive until that read returns; the chunk channel
// closes when it does.
func (s *ReaderSource) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.pipe != nil {
			s.pipe.Close()
		}
	})
	return nil
}
