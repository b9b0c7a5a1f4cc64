package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/compression"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/logger"
)

// FileSource replays a captured byte log through the pipeline,
// transparently decompressing by extension and optionally pacing
// delivery to simulate live arrival.
type FileSource struct {
	path string
	opts options

	file   *os.File
	pipe   io.ReadCloser // non-nil when decompressing
	pump   *pump
	cancel context.CancelFunc
	done   chan struct{}
	opened bool

	once     sync.Once
	closeErr error
}

// NewFileSource creates a replay source for path.
func NewFileSource(path string, opts ...Option) *FileSource {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.explicit {
		o.algorithm = algorithmForPath(path)
	}
	return &FileSource{
		path: path,
		opts: o,
		pump: newPump("file", o),
	}
}

// Name identifies the source in logs.
func (s *FileSource) Name() string { return "file:" + filepath.Base(s.path) }

// Open opens the file and starts streaming it.
func (s *FileSource) Open(ctx context.Context) error {
	if s.opened {
		return errors.New(errors.ErrorTypeValidation, "source already open")
	}
	s.opened = true

	file, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open capture file "+s.path)
	}
	s.file = file

	var r io.Reader = file
	if s.opts.algorithm != compression.None {
		pr, perr := decompressReader(file, s.opts.algorithm)
		if perr != nil {
			file.Close()
			return perr
		}
		s.pipe = pr
		r = pr
	}

	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	logger.Info("replaying capture file",
		zap.String("path", s.path),
		zap.String("compression", string(s.opts.algorithm)),
		zap.Duration("pace", s.opts.pace))

	go func() {
		defer close(s.done)
		s.pump.run(rctx, r)
	}()
	return nil
}

// Chunks delivers byte chunks. Valid once Open has been called.
func (s *FileSource) Chunks() <-chan []byte { return s.pump.chunks }

// Errors delivers the terminal stream error, if any.
func (s *FileSource) Errors() <-chan error { return s.pump.errs }

// Close stops the replay and closes the file.
func (s *FileSource) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.pipe != nil {
			s.pipe.Close()
		}
		if s.file != nil {
			if err := s.file.Close(); err != nil {
				s.closeErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to close capture file")
			}
		}
		if s.done != nil {
			<-s.done
		}
	})
	return s.closeErr
}

// algorithmForPath infers the decompression algorithm from the file
// extension.
func algorithmForPath(path string) compression.Algorithm {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return compression.Gzip
	case ".zst", ".zstd":
		return compression.Zstd
	case ".lz4":
		return compression.LZ4
	case ".s2":
		return compression.S2
	case ".snappy", ".sz":
		return compression.Snappy
	case ".zz":
		return compression.Deflate
	default:
		return compression.None
	}
}
