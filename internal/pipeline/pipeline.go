// Package pipeline wires a byte source through decoding, framing, and row
// parsing into the windowed table, preserving arrival order end to end.
//
// # Architecture
//
// The data flow is linear:
//
//	source chunks → decoder → text chunks → framer → lines → parser → table
//
// The decoder and the framer both carry state across chunk boundaries (a
// split UTF-8 sequence, an unterminated line), so one stream is never
// processed in parallel. Concurrency exists only between stages: the
// source's read loop, the decode goroutine, and the consuming loop in Run,
// connected by channels.
//
// Every framed line also feeds the bounded head/tail log, independently of
// whether it parses.
//
// # Basic Usage
//
//	p, err := pipeline.New(cfg, src)
//	if err != nil {
//	    return err
//	}
//	if err := p.Run(ctx); err != nil {
//	    return err
//	}
//	slice, _ := p.Table().Slice(p.Table().Range())
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/config"
	"github.com/ajitpratap0/serialscope/pkg/decode"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/frame"
	"github.com/ajitpratap0/serialscope/pkg/logger"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
	"github.com/ajitpratap0/serialscope/pkg/models"
	"github.com/ajitpratap0/serialscope/pkg/observability"
	"github.com/ajitpratap0/serialscope/pkg/pool"
	"github.com/ajitpratap0/serialscope/pkg/rowparse"
	"github.com/ajitpratap0/serialscope/pkg/source"
	"github.com/ajitpratap0/serialscope/pkg/table"
	"github.com/ajitpratap0/serialscope/pkg/taillog"
)

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	SessionID     string        `json:"session_id"`
	Source        string        `json:"source"`
	Chunks        int64         `json:"chunks"`
	Lines         int64         `json:"lines"`
	Refused       int64         `json:"refused"`
	HeaderRows    int64         `json:"header_rows"`
	DataRows      int64         `json:"data_rows"`
	Rejected      int64         `json:"rejected"`
	Duration      time.Duration `json:"duration"`
	RowsPerSecond float64       `json:"rows_per_second"`
	Table         table.Stats   `json:"table"`
}

// Pipeline is a single-use capture session: construct, Run once, inspect.
// The table and the line log remain readable after Run returns.
type Pipeline struct {
	cfg    *config.Config
	src    source.Source
	window *table.Window
	tail   *taillog.Log

	tracer             *observability.SessionTracer
	throughput         *metrics.ThroughputTracker
	throughputInterval time.Duration

	sessionID string

	chunks   atomic.Int64
	lines    atomic.Int64
	refused  atomic.Int64
	headers  atomic.Int64
	data     atomic.Int64
	rejected atomic.Int64

	// evictedSeen is touched only by the consuming loop.
	evictedSeen int64

	mu        sync.Mutex
	started   bool
	startTime time.Time
	endTime   time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThroughputInterval overrides how often the rows/second gauge is
// recomputed. Mainly for tests.
func WithThroughputInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.throughputInterval = d
		}
	}
}

// New creates a pipeline over the given source. A nil cfg uses defaults;
// a non-nil cfg is validated.
func New(cfg *config.Config, src source.Source, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "pipeline requires a source")
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig("serialscope")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid pipeline configuration")
	}

	window, err := table.NewWindow(cfg.Pipeline.RowLimit)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:                cfg,
		src:                src,
		window:             window,
		tail:               taillog.New(cfg.Pipeline.LogHead, cfg.Pipeline.LogTail),
		sessionID:          pool.GenerateID("session"),
		throughputInterval: 5 * time.Second,
	}
	p.tracer = observability.NewSessionTracer(src.Name(), p.sessionID)
	p.throughput = metrics.NewThroughputTracker(src.Name())

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run opens the source and processes the stream until it ends, ctx is
// cancelled, or Stop is called. It blocks until all stages have drained
// and returns the source's terminal error, if any. A Pipeline runs once;
// a second call fails.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New(errors.ErrorTypeValidation, "pipeline already started; construct a new one to restart")
	}
	p.started = true
	p.startTime = time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.endTime = time.Now()
		p.mu.Unlock()
		cancel()
		close(done)
	}()

	runCtx, span := p.tracer.StartSpan(runCtx, "capture")
	defer func() {
		span.SetAttribute("lines", p.lines.Load())
		span.SetAttribute("rows", p.headers.Load()+p.data.Load())
		span.SetAttribute("refused", p.refused.Load())
		span.End()
	}()

	logger.Info("pipeline starting",
		zap.String("session_id", p.sessionID),
		zap.String("source", p.src.Name()),
		zap.Int("row_limit", p.cfg.Pipeline.RowLimit),
		zap.Int("channel_buffer", p.cfg.Pipeline.ChannelBuffer))

	if err := p.src.Open(runCtx); err != nil {
		return err
	}

	decOpts := []decode.Option{decode.WithBuffer(p.cfg.Pipeline.ChannelBuffer)}
	if l, ok := p.src.(source.Leaser); ok {
		decOpts = append(decOpts, decode.WithRelease(l.Release))
	}
	dec := decode.NewDecoder(decOpts...)

	stream, err := dec.Decode(runCtx, p.src.Chunks())
	if err != nil {
		p.closeSource()
		dec.Close()
		return err
	}

	reporterDone := make(chan struct{})
	go p.reportThroughput(runCtx, reporterDone)

	p.consume(runCtx, stream.Chunks)

	cancel()
	<-reporterDone

	p.closeSource()
	srcErr := p.drainErrors()
	if rerr := dec.Close(); rerr != nil {
		logger.Warn("release failed",
			zap.String("session_id", p.sessionID),
			zap.Error(rerr))
	}

	stats := p.snapshot(time.Since(p.startTime))
	logger.Info("pipeline finished",
		zap.String("session_id", p.sessionID),
		zap.Int64("lines", stats.Lines),
		zap.Int64("header_rows", stats.HeaderRows),
		zap.Int64("data_rows", stats.DataRows),
		zap.Int64("refused", stats.Refused),
		zap.Int64("rejected", stats.Rejected),
		zap.Duration("duration", stats.Duration),
		zap.Float64("rows_per_second", stats.RowsPerSecond))

	return srcErr
}

// consume drives the framer over decoded text and handles every line. It
// returns when the text stream closes or ctx is cancelled.
func (p *Pipeline) consume(ctx context.Context, chunks <-chan string) {
	f := frame.NewFramer()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				// Final unterminated remainder. Empty means the stream
				// ended on a terminator; there is no line to process.
				if line := f.Flush(); line != "" {
					p.handleLine(line)
				}
				return
			}
			p.chunks.Add(1)
			metrics.ChunksDecoded.Inc()
			for _, line := range f.Push(chunk) {
				p.handleLine(line)
			}
		}
	}
}

func (p *Pipeline) handleLine(line string) {
	p.tail.Append(line)
	p.lines.Add(1)
	metrics.LinesFramed.Inc()

	row, err := rowparse.ParseRow(line)
	if err != nil {
		p.refused.Add(1)
		metrics.LinesRefused.Inc()
		logger.Debug("line refused",
			zap.String("session_id", p.sessionID),
			zap.Int("length", len(line)))
		return
	}
	metrics.RowsParsed.WithLabelValues(row.Kind()).Inc()

	timer := metrics.NewTimer("push")
	err = p.window.Push(row)
	metrics.ProcessingLatency.WithLabelValues("push").Observe(float64(timer.Stop().Nanoseconds()))
	if err != nil {
		p.rejected.Add(1)
		metrics.RowsRejected.Inc()
		logger.Warn("row rejected",
			zap.String("session_id", p.sessionID),
			zap.Error(err))
		return
	}

	switch row.(type) {
	case models.HeaderRow:
		p.headers.Add(1)
	case models.DataRow:
		p.data.Add(1)
		p.throughput.Increment(1)
	}

	stats := p.window.Stats()
	metrics.TableRows.Set(float64(stats.Rows))
	metrics.TableGeneration.Set(float64(stats.Key))
	if d := stats.Evicted - p.evictedSeen; d > 0 {
		metrics.RowsEvicted.Add(float64(d))
		p.evictedSeen = stats.Evicted
	}
}

func (p *Pipeline) closeSource() {
	if err := p.src.Close(); err != nil {
		logger.Warn("source close failed",
			zap.String("session_id", p.sessionID),
			zap.Error(err))
	}
}

// drainErrors polls the source's terminal error. A source reports at most
// one error, buffered before its chunk stream closes, so after a normal
// end of stream a single receive observes it. After cancellation the
// source may still be blocked in a read nothing will unblock (stdin),
// which is why this never waits.
func (p *Pipeline) drainErrors() error {
	select {
	case err, ok := <-p.src.Errors():
		if ok && err != nil {
			logger.Error("source error",
				zap.String("session_id", p.sessionID),
				zap.Error(err))
			return err
		}
	default:
	}
	return nil
}

func (p *Pipeline) reportThroughput(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.throughputInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rps := p.throughput.GetAndReset()
			logger.Debug("throughput",
				zap.String("session_id", p.sessionID),
				zap.Float64("rows_per_second", rps))
		}
	}
}

// Stop cancels a running pipeline and waits for Run to return. Safe to
// call at any time, any number of times.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	logger.Info("pipeline stopping", zap.String("session_id", p.sessionID))
	cancel()
	<-done
}

// Table returns the windowed table fed by this pipeline.
func (p *Pipeline) Table() *table.Window { return p.window }

// Log returns the bounded head/tail line log.
func (p *Pipeline) Log() *taillog.Log { return p.tail }

// SessionID returns the generated session identifier.
func (p *Pipeline) SessionID() string { return p.sessionID }

// Stats returns a snapshot of session counters. The duration keeps
// running while the pipeline does and freezes when Run returns.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	start, end := p.startTime, p.endTime
	p.mu.Unlock()

	var duration time.Duration
	switch {
	case start.IsZero():
	case end.IsZero():
		duration = time.Since(start)
	default:
		duration = end.Sub(start)
	}
	return p.snapshot(duration)
}

func (p *Pipeline) snapshot(duration time.Duration) Stats {
	s := Stats{
		SessionID:  p.sessionID,
		Source:     p.src.Name(),
		Chunks:     p.chunks.Load(),
		Lines:      p.lines.Load(),
		Refused:    p.refused.Load(),
		HeaderRows: p.headers.Load(),
		DataRows:   p.data.Load(),
		Rejected:   p.rejected.Load(),
		Duration:   duration,
		Table:      p.window.Stats(),
	}
	if secs := duration.Seconds(); secs > 0 {
		s.RowsPerSecond = float64(s.DataRows) / secs
	}
	return s
}
