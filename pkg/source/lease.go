package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/logger"
)

// Lease is an exclusive claim on a shared transport, backed by a lock
// file recording the holder's pid.
type Lease struct {
	path string
	once sync.Once
	err  error
}

// AcquireLease takes the exclusive lease for name under dir. A live
// holder causes a conflict error; a lease whose recorded pid is gone is
// reclaimed.
func AcquireLease(dir, name string) (*Lease, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create lock directory")
	}

	path := filepath.Join(dir, leaseFileName(name))

	// Two attempts: the second runs after reclaiming a stale lease.
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, errors.New(errors.ErrorTypeFile, "failed to write lease file")
			}
			return &Lease{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create lease file")
		}

		pid, perr := holderPid(path)
		if perr == nil && pid > 0 {
			alive, aerr := process.PidExists(int32(pid))
			if aerr == nil && alive {
				return nil, errors.Newf(errors.ErrorTypeConflict, "port leased by pid %d (%s)", pid, path)
			}
		}

		// Holder is gone or the file is garbage: reclaim and retry.
		logger.Warn("reclaiming stale lease", zap.String("path", path), zap.Int("pid", pid))
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, errors.Wrap(rerr, errors.ErrorTypeFile, "failed to reclaim stale lease")
		}
	}

	return nil, errors.Newf(errors.ErrorTypeConflict, "failed to acquire lease %s", path)
}

// Path returns the lock file location.
func (l *Lease) Path() string { return l.path }

// Release removes the lock file. Safe to call any number of times; the
// removal happens once and later calls return the same result.
func (l *Lease) Release() error {
	l.once.Do(func() {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.err = errors.Wrap(err, errors.ErrorTypeFile, "failed to release lease")
		}
	})
	return l.err
}

func holderPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// leaseFileName maps a port path like /dev/ttyUSB0 to a flat lock file
// name.
func leaseFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.Trim(mapped, "_") + ".lock"
}
