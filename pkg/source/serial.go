package source

import (
	"context"
	"sort"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/config"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/logger"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
	"github.com/ajitpratap0/serialscope/pkg/pool"
)

// SerialSource streams a live serial device. When a lock directory is
// configured it takes the port lease before opening, so two capture
// processes never share one device.
type SerialSource struct {
	cfg   config.SerialConfig
	lease *Lease
	port  serial.Port

	chunks chan []byte
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	opened bool

	once     sync.Once
	closeErr error
}

// NewSerialSource creates a source for the configured device.
func NewSerialSource(cfg config.SerialConfig) *SerialSource {
	return &SerialSource{
		cfg:    cfg,
		chunks: make(chan []byte, 16),
		errs:   make(chan error, 1),
	}
}

// Name identifies the source in logs.
func (s *SerialSource) Name() string { return "serial:" + s.cfg.Port }

// Open acquires the lease when configured, opens the device, and starts
// the read loop.
func (s *SerialSource) Open(ctx context.Context) error {
	if s.opened {
		return errors.New(errors.ErrorTypeValidation, "source already open")
	}
	if s.cfg.Port == "" {
		return errors.New(errors.ErrorTypeConfig, "serial port not configured")
	}
	s.opened = true

	if s.cfg.LeaseEnabled() {
		lease, err := AcquireLease(s.cfg.LockDir, s.cfg.Port)
		if err != nil {
			return err
		}
		s.lease = lease
	}

	mode, err := modeFor(s.cfg)
	if err != nil {
		s.releaseLease()
		return err
	}

	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		s.releaseLease()
		return errors.Wrap(err, errors.ErrorTypeTransport, "failed to open serial port "+s.cfg.Port)
	}
	if s.cfg.ReadTimeout > 0 {
		if terr := port.SetReadTimeout(s.cfg.ReadTimeout); terr != nil {
			port.Close()
			s.releaseLease()
			return errors.Wrap(terr, errors.ErrorTypeTransport, "failed to set read timeout")
		}
	}
	s.port = port

	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	logger.Info("serial port opened",
		zap.String("port", s.cfg.Port),
		zap.Int("baud", s.cfg.BaudRate),
		zap.Int("data_bits", s.cfg.DataBits),
		zap.String("parity", s.cfg.Parity),
		zap.String("stop_bits", s.cfg.StopBits))

	go s.readLoop(rctx)
	return nil
}

func (s *SerialSource) readLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.chunks)
	defer close(s.errs)

	size := s.cfg.ReadBufferSize
	if size <= 0 {
		size = 4096
	}
	buf := pool.Buffers.Get(size)
	defer pool.Buffers.Put(buf)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := s.port.Read(buf[:cap(buf)])
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case s.chunks <- chunk:
				metrics.BytesRead.WithLabelValues("serial").Add(float64(n))
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			// Close unblocks a pending Read with an error; only report
			// failures from a live session.
			if ctx.Err() == nil {
				select {
				case s.errs <- errors.Wrap(err, errors.ErrorTypeTransport, "serial read failed"):
				default:
				}
			}
			return
		}
		// n == 0 with a nil error is a read timeout; loop to re-check
		// cancellation.
	}
}

// Chunks delivers byte chunks read from the device.
func (s *SerialSource) Chunks() <-chan []byte { return s.chunks }

// Errors delivers the terminal read error, if any.
func (s *SerialSource) Errors() <-chan error { return s.errs }

// Close stops the read loop, closes the device, and returns the lease.
func (s *SerialSource) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.port != nil {
			if err := s.port.Close(); err != nil {
				s.closeErr = errors.Wrap(err, errors.ErrorTypeTransport, "failed to close serial port")
			}
			<-s.done
		}
		if err := s.releaseLease(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// Release returns the port lease; implements Leaser. Safe before Open
// and after Close.
func (s *SerialSource) Release() error {
	return s.releaseLease()
}

func (s *SerialSource) releaseLease() error {
	if s.lease == nil {
		return nil
	}
	return s.lease.Release()
}

// modeFor translates the config section into a device mode.
func modeFor(cfg config.SerialConfig) (*serial.Mode, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stop,
	}, nil
}

func parseParity(s string) (serial.Parity, error) {
	switch s {
	case "", "none":
		return serial.NoParity, nil
	case "odd":
		return serial.OddParity, nil
	case "even":
		return serial.EvenParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "unknown parity %q", s)
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "unknown stop bits %q", s)
}

// ListPorts enumerates the serial ports visible to the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "failed to enumerate serial ports")
	}
	sort.Strings(ports)
	return ports, nil
}
