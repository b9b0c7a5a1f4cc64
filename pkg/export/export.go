// Package export writes window slices to files or writers as CSV or
// JSON, optionally compressed.
//
// CSV output round-trips through the row parser: numbers are formatted
// with strconv's shortest 'g' form, so re-parsing an export reproduces
// the original values bit for bit. JSON output substitutes null for
// NaN and the infinities, which JSON cannot carry.
package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/compression"
	"github.com/ajitpratap0/serialscope/pkg/config"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/logger"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
	"github.com/ajitpratap0/serialscope/pkg/pool"
	"github.com/ajitpratap0/serialscope/pkg/rowparse"
	"github.com/ajitpratap0/serialscope/pkg/table"
)

// Format selects the export writer.
type Format string

const (
	// FormatCSV emits a header row of column names and one record per
	// retained row.
	FormatCSV Format = "csv"
	// FormatJSON emits the slice as a JSON document.
	FormatJSON Format = "json"
)

// ParseFormat maps a configuration string to a Format. The empty string
// means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported export format %q", s)
}

// Layout selects the JSON document shape.
type Layout string

const (
	// LayoutColumns emits one document with the slice metadata and a
	// values array per column. The default.
	LayoutColumns Layout = "columns"
	// LayoutRecords emits an array of row objects keyed by column name,
	// each carrying its logical row index.
	LayoutRecords Layout = "records"
)

// Exporter writes slices in one configured format and compression.
type Exporter struct {
	format    Format
	layout    Layout
	algorithm compression.Algorithm
	level     compression.Level
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLayout selects the JSON document shape. Ignored for CSV.
func WithLayout(l Layout) Option {
	return func(e *Exporter) { e.layout = l }
}

// NewExporter builds an exporter from the export config section.
func NewExporter(cfg config.ExportConfig, opts ...Option) (*Exporter, error) {
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	algorithm, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid export compression")
	}

	e := &Exporter{
		format:    format,
		layout:    LayoutColumns,
		algorithm: algorithm,
		level:     levelFor(cfg.Level),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExportSlice writes the slice to w.
func (e *Exporter) ExportSlice(w io.Writer, slice table.Slice) error {
	if len(slice.Columns) == 0 {
		return errors.New(errors.ErrorTypeValidation, "slice has no columns")
	}

	buf := pool.GetBytesBuffer()
	defer pool.PutBytesBuffer(buf)

	var err error
	switch e.format {
	case FormatCSV:
		err = encodeCSV(buf, slice)
	case FormatJSON:
		err = encodeJSON(buf, slice, e.layout)
	default:
		err = errors.Newf(errors.ErrorTypeConfig, "unsupported export format %q", e.format)
	}
	if err != nil {
		return err
	}

	var written int
	if e.algorithm == compression.None {
		written, err = w.Write(buf.Bytes())
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write export")
		}
	} else {
		comp, cerr := compression.NewCompressor(&compression.Config{
			Algorithm: e.algorithm,
			Level:     e.level,
		})
		if cerr != nil {
			return errors.Wrap(cerr, errors.ErrorTypeConfig, "failed to build export compressor")
		}
		cw := &countingWriter{w: w}
		if err := comp.CompressStream(cw, buf); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to compress export")
		}
		written = cw.n
	}

	metrics.ExportBytes.WithLabelValues(string(e.format), string(e.algorithm)).Add(float64(written))
	return nil
}

// ExportFile writes the slice to path, appending the compression
// extension when one applies. It returns the path actually written.
func (e *Exporter) ExportFile(path string, slice table.Slice) (string, error) {
	if ext := extensionFor(e.algorithm); ext != "" && !strings.HasSuffix(path, ext) {
		path += ext
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create export directory")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create export file "+path)
	}
	if err := e.ExportSlice(f, slice); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to close export file")
	}

	logger.Info("slice exported",
		zap.String("path", path),
		zap.String("format", string(e.format)),
		zap.String("compression", string(e.algorithm)),
		zap.Int("rows", slice.Range.Len()))

	return path, nil
}

func encodeCSV(w io.Writer, slice table.Slice) error {
	cw := csv.NewWriter(w)

	header := pool.GetFields()
	defer pool.PutFields(header)
	for _, col := range slice.Columns {
		header = append(header, col.Name)
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write header row")
	}

	fields := pool.GetFields()
	defer pool.PutFields(fields)
	for j := 0; j < slice.Range.Len(); j++ {
		fields = fields[:0]
		for _, col := range slice.Columns {
			fields = append(fields, rowparse.FormatNumber(col.Values[j]))
		}
		if err := cw.Write(fields); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to write data row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "csv writer failed")
	}
	return nil
}

// jsonValue renders NaN and the infinities as null; JSON has no
// representation for them.
type jsonValue float64

func (v jsonValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

type jsonColumn struct {
	Name   string      `json:"name"`
	ID     string      `json:"id"`
	Values []jsonValue `json:"values"`
}

type jsonDocument struct {
	Key     int          `json:"key"`
	Start   int          `json:"start"`
	End     int          `json:"end"`
	Columns []jsonColumn `json:"columns"`
}

func encodeJSON(w io.Writer, slice table.Slice, layout Layout) error {
	var doc interface{}

	switch layout {
	case LayoutColumns:
		cols := make([]jsonColumn, len(slice.Columns))
		for i, col := range slice.Columns {
			values := make([]jsonValue, len(col.Values))
			for j, v := range col.Values {
				values[j] = jsonValue(v)
			}
			cols[i] = jsonColumn{Name: col.Name, ID: col.ID, Values: values}
		}
		doc = jsonDocument{
			Key:     slice.Key,
			Start:   slice.Range.Start,
			End:     slice.Range.End,
			Columns: cols,
		}

	case LayoutRecords:
		records := make([]map[string]interface{}, slice.Range.Len())
		for j := range records {
			row := make(map[string]interface{}, len(slice.Columns)+1)
			row["index"] = slice.Range.Start + j
			for _, col := range slice.Columns {
				row[col.Name] = jsonValue(col.Values[j])
			}
			records[j] = row
		}
		doc = records

	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported JSON layout %q", layout)
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode JSON")
	}
	return nil
}

// levelFor quantizes the 1..9 config scale to the supported levels.
// Zero means unset and takes the default.
func levelFor(n int) compression.Level {
	switch {
	case n <= 0:
		return compression.Default
	case n <= 2:
		return compression.Fastest
	case n <= 6:
		return compression.Default
	case n <= 8:
		return compression.Better
	default:
		return compression.Best
	}
}

// extensionFor names the file extension conventional for the algorithm.
func extensionFor(a compression.Algorithm) string {
	switch a {
	case compression.Gzip:
		return ".gz"
	case compression.Zstd:
		return ".zst"
	case compression.LZ4:
		return ".lz4"
	case compression.S2:
		return ".s2"
	case compression.Snappy:
		return ".snappy"
	case compression.Deflate:
		return ".zz"
	default:
		return ""
	}
}

type countingWriter struct {
	w io.Writer
	n int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += n
	return n, err
}
