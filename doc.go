// Package serialscope turns the byte stream of a serial-attached data
// logger into a bounded in-memory table of numeric columns that can be
// inspected and exported while the device keeps talking.
//
// Serialscope deals with the unglamorous realities of instrument output:
//   - bytes arrive in arbitrary chunks that split UTF-8 sequences and lines
//   - devices mix \r\n and \n terminators, often within one session
//   - column headers appear mid-stream whenever the firmware restarts
//   - malformed lines are frequent and must never stall the capture
//
// # Architecture
//
// The capture path is a linear pipeline of small, stateful stages:
//
// 1. Source: a serial port, a file replay, or any io.Reader produces raw
// byte chunks on a channel. Serial sources hold an advisory lock on the
// device node for the lifetime of the capture.
//
// 2. Decode: chunks are decoded incrementally as UTF-8; sequences split
// across chunk boundaries are reassembled, invalid bytes become U+FFFD.
//
// 3. Frame: decoded text is split into lines on \r?\n, carrying partial
// lines across chunk boundaries.
//
// 4. Parse: each line is parsed against a deliberately narrow CSV dialect;
// lines outside the dialect are refused and counted rather than guessed at.
//
// 5. Table: parsed rows land in a fixed-capacity windowed table that keeps
// the most recent rows per column and starts a new generation whenever a
// header row arrives.
//
// # Quick Start
//
// Replay a capture file into a table and export the window:
//
//	import (
//	    "context"
//	    "github.com/ajitpratap0/serialscope/internal/pipeline"
//	    "github.com/ajitpratap0/serialscope/pkg/config"
//	    "github.com/ajitpratap0/serialscope/pkg/export"
//	    "github.com/ajitpratap0/serialscope/pkg/source"
//	)
//
//	cfg := config.NewDefaultConfig("serialscope")
//	cfg.Pipeline.RowLimit = 5000
//
//	src := source.NewFileSource("capture.csv")
//	p, _ := pipeline.New(cfg, src)
//	_ = p.Run(context.Background())
//
//	w := p.Table()
//	slice, _ := w.Slice(w.Range())
//	exp, _ := export.NewExporter(cfg.Export)
//	_, _ = exp.ExportFile("out.csv", slice)
//
// # Key Packages
//
//	pkg/source        - Serial, file, and reader chunk sources with locking
//	pkg/decode        - Incremental UTF-8 decoding of chunk streams
//	pkg/frame         - Line framing across chunk boundaries
//	pkg/rowparse      - The narrow CSV dialect and number formatting
//	pkg/table         - Fixed-capacity windowed column table
//	pkg/taillog       - Head/tail retention of raw lines
//	pkg/export        - CSV/JSON slice export with optional compression
//	pkg/config        - Configuration loading and validation
//	pkg/errors        - Structured error handling
//	pkg/logger        - High-performance structured logging
//	pkg/metrics       - Prometheus metrics collection
//	internal/pipeline - Capture orchestration from source to table
//
// # Data Handling
//
// Serialscope is strict where it matters and lossy only where it says so:
//
// Numbers:
//   - parsed with strconv, round-tripped through shortest 'g' formatting
//   - overflow saturates to ±Inf; NaN is accepted literally
//   - negative zero normalizes to zero on parse
//
// Refusal over guessing:
//   - quoted fields, escapes, and embedded separators are refused
//   - refusals are counted and logged, never silently repaired
//
// Bounded memory:
//   - the table holds at most the configured row limit per column
//   - the raw line log keeps a fixed head and tail of the session
//
// # Command Line
//
// The serialscope binary captures live ports and replays files:
//
//	serialscope ports
//	serialscope run --port /dev/ttyUSB0 --baud 115200 --export out.csv
//	serialscope replay capture.csv --pace 10ms
//	serialscope replay - < capture.csv
//
// # Configuration
//
// Configuration lives in a single struct loaded from YAML or JSON:
//
//	type Config struct {
//	    Pipeline      PipelineConfig      // Row limit, buffers, line log
//	    Serial        SerialConfig        // Port, baud, framing, locking
//	    Export        ExportConfig        // Path, format, compression
//	    Observability ObservabilityConfig // Logging, metrics, tracing
//	}
//
// Environment variables are supported with ${VAR_NAME} syntax.
//
// # License
//
// Serialscope is released under the Apache 2.0 License.
// See LICENSE file for details.
package serialscope
