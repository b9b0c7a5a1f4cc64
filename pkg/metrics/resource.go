package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/logger"
)

// ResourceSampler periodically samples process CPU, memory, and goroutine
// counts into the resource gauges. One sampler per process is enough.
type ResourceSampler struct {
	interval time.Duration
	proc     *process.Process

	mu           sync.Mutex
	lastCPUTime  float64
	lastSampleAt time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// ResourceUsage is one sample of process resource state.
type ResourceUsage struct {
	CPUPercent   float64
	MemoryRSS    uint64
	SystemMemPct float64
	Goroutines   int
	OpenFDs      int32
}

// NewResourceSampler creates a sampler with the given interval.
func NewResourceSampler(interval time.Duration) *ResourceSampler {
	proc, _ := process.NewProcess(int32(os.Getpid()))

	rs := &ResourceSampler{
		interval:     interval,
		proc:         proc,
		lastSampleAt: time.Now(),
	}
	if proc != nil {
		if times, err := proc.Times(); err == nil {
			rs.lastCPUTime = times.Total()
		}
	}
	return rs
}

// Start launches the sampling loop. It runs until Stop is called or ctx is
// cancelled.
func (rs *ResourceSampler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	rs.mu.Lock()
	rs.cancel = cancel
	rs.done = make(chan struct{})
	done := rs.done
	rs.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(rs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				usage := rs.Sample()
				logger.Debug("resource sample",
					zap.Float64("cpu_percent", usage.CPUPercent),
					zap.Uint64("memory_rss", usage.MemoryRSS),
					zap.Int("goroutines", usage.Goroutines))
			}
		}
	}()
}

// Stop terminates the sampling loop and waits for it to exit.
func (rs *ResourceSampler) Stop() {
	rs.mu.Lock()
	cancel := rs.cancel
	done := rs.done
	rs.cancel = nil
	rs.done = nil
	rs.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Sample takes one resource sample and publishes it to the gauges.
func (rs *ResourceSampler) Sample() ResourceUsage {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	usage := ResourceUsage{Goroutines: runtime.NumGoroutine()}

	if rs.proc != nil {
		if times, err := rs.proc.Times(); err == nil {
			now := time.Now()
			elapsed := now.Sub(rs.lastSampleAt).Seconds()
			if elapsed > 0 {
				usage.CPUPercent = (times.Total() - rs.lastCPUTime) / elapsed * 100
			}
			rs.lastCPUTime = times.Total()
			rs.lastSampleAt = now
		}
		if info, err := rs.proc.MemoryInfo(); err == nil {
			usage.MemoryRSS = info.RSS
		}
		if fds, err := rs.proc.NumFDs(); err == nil {
			usage.OpenFDs = fds
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemPct = vm.UsedPercent
	}

	CPUPercent.Set(usage.CPUPercent)
	MemoryRSS.Set(float64(usage.MemoryRSS))
	Goroutines.Set(float64(usage.Goroutines))

	return usage
}
