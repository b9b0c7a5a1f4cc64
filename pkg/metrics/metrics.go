// Package metrics exposes Prometheus metrics for the capture pipeline:
// bytes and lines in, rows by kind, refusals and rejections, table window
// state, and export activity. All metrics carry the "serialscope_" prefix
// and register themselves on the default registry.
//
// # Basic Usage
//
//	metrics.BytesRead.WithLabelValues("serial").Add(float64(n))
//	metrics.RowsParsed.WithLabelValues("data").Inc()
//
//	timer := metrics.NewTimer("export")
//	exportSlice(s)
//	metrics.ProcessingLatency.WithLabelValues("export").
//	    Observe(float64(timer.Stop().Nanoseconds()))
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BytesRead counts raw bytes consumed from a source.
	// Labels: source (serial/file/reader).
	BytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serialscope_bytes_read_total",
			Help: "Total bytes read from the input source",
		},
		[]string{"source"},
	)

	// ChunksDecoded counts text chunks emitted by the decoder.
	ChunksDecoded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serialscope_chunks_decoded_total",
			Help: "Total text chunks produced by the decoder",
		},
	)

	// LinesFramed counts complete lines produced by the framer.
	LinesFramed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serialscope_lines_total",
			Help: "Total lines framed from the text stream",
		},
	)

	// LinesRefused counts lines the parser refused.
	LinesRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serialscope_lines_refused_total",
			Help: "Total lines refused by the CSV dialect",
		},
	)

	// RowsParsed counts parsed rows by kind.
	// Labels: kind (header/data).
	RowsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serialscope_rows_parsed_total",
			Help: "Total rows parsed, by kind",
		},
		[]string{"kind"},
	)

	// RowsRejected counts data rows dropped for arity mismatch.
	RowsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serialscope_rows_rejected_total",
			Help: "Total data rows rejected for arity mismatch",
		},
	)

	// RowsEvicted counts rows evicted from the table window.
	RowsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serialscope_rows_evicted_total",
			Help: "Total rows evicted from the table window",
		},
	)

	// TableRows reports the currently retained row count.
	TableRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serialscope_table_rows",
			Help: "Rows currently retained in the table window",
		},
	)

	// TableGeneration reports the active schema generation key.
	TableGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serialscope_table_generation",
			Help: "Active table schema generation",
		},
	)

	// ProcessingLatency tracks stage latencies in nanoseconds.
	// Labels: operation (decode/frame/parse/push/export).
	ProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "serialscope_processing_latency_nanoseconds",
			Help: "Stage processing latency in nanoseconds",
			Buckets: []float64{
				100,    // 100ns
				1000,   // 1μs
				10000,  // 10μs
				100000, // 100μs
				1e6,    // 1ms
				1e7,    // 10ms
				1e8,    // 100ms
				1e9,    // 1s
			},
		},
		[]string{"operation"},
	)

	// Throughput reports rows per second by source.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "serialscope_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"source"},
	)

	// ExportBytes counts bytes written by the exporter.
	// Labels: format (csv/json), compression.
	ExportBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serialscope_export_bytes_total",
			Help: "Total bytes written by exports",
		},
		[]string{"format", "compression"},
	)

	// CPUPercent reports process CPU usage sampled by the resource sampler.
	CPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serialscope_cpu_percent",
			Help: "Process CPU usage percent",
		},
	)

	// MemoryRSS reports resident memory sampled by the resource sampler.
	MemoryRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serialscope_memory_rss_bytes",
			Help: "Process resident set size in bytes",
		},
	)

	// Goroutines reports the goroutine count sampled by the resource
	// sampler.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serialscope_goroutines",
			Help: "Number of goroutines",
		},
	)
)

// Timer measures one operation's duration.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts timing immediately. The name is for logs.
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Stop returns the elapsed time since creation. Stopping more than once
// returns the cumulative elapsed time each call.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker computes rows per second over reset windows and
// publishes the result to the Throughput gauge. Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	source    string
}

// NewThroughputTracker creates a tracker labeled with the given source.
func NewThroughputTracker(source string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		source:    source,
	}
}

// Increment adds n rows to the current window.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes the window's rows/second, publishes it, resets the
// window, and returns it.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.source).Set(throughput)
	return throughput
}
