// Package compression compresses export payloads. It supports several
// algorithms with configurable levels behind one Compressor interface,
// plus a pool for reusing compressor instances.
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip/Deflate.
// Ratio (best to worst): Zstd > Gzip/Deflate > Snappy/S2 > LZ4.
package compression

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/serialscope/pkg/pool"
)

// Algorithm identifies a compression algorithm.
type Algorithm string

const (
	// None passes data through unchanged.
	None Algorithm = "none"
	// Gzip is the ubiquitous archive-friendly choice.
	Gzip Algorithm = "gzip"
	// Snappy favors speed over ratio.
	Snappy Algorithm = "snappy"
	// LZ4 is the fastest option.
	LZ4 Algorithm = "lz4"
	// Zstd gives the best ratio at good speed.
	Zstd Algorithm = "zstd"
	// S2 is a faster Snappy-compatible encoding.
	S2 Algorithm = "s2"
	// Deflate is raw DEFLATE without the gzip envelope.
	Deflate Algorithm = "deflate"
)

// ParseAlgorithm maps a configuration string to an Algorithm. The empty
// string means None.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return None, nil
	}
	a := Algorithm(strings.ToLower(s))
	switch a {
	case None, Gzip, Snappy, LZ4, Zstd, S2, Deflate:
		return a, nil
	}
	return "", fmt.Errorf("unsupported compression algorithm: %q", s)
}

// Level controls the speed/ratio trade-off for algorithms that support
// levels. Snappy and S2 ignore it.
type Level int

const (
	// Fastest prioritizes throughput.
	Fastest Level = 1
	// Default balances speed and ratio.
	Default Level = 5
	// Better favors ratio over speed.
	Better Level = 7
	// Best maximizes ratio.
	Best Level = 9
)

func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Compressor compresses and decompresses byte payloads. Implementations
// are safe for concurrent use.
type Compressor interface {
	// Compress returns the compressed form of data; data is not modified.
	Compress(data []byte) ([]byte, error)

	// Decompress returns the original form of data; data is not modified.
	Decompress(data []byte) ([]byte, error)

	// CompressStream compresses src into dst.
	CompressStream(dst io.Writer, src io.Reader) error

	// DecompressStream decompresses src into dst.
	DecompressStream(dst io.Writer, src io.Reader) error

	// Algorithm returns the configured algorithm.
	Algorithm() Algorithm

	// Level returns the configured level.
	Level() Level
}

// Config selects an algorithm and level.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig favors speed: Snappy at the default level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Snappy,
		Level:     Default,
	}
}

// NewCompressor creates a compressor for the configured algorithm. A nil
// config means DefaultConfig.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Level == 0 {
		config.Level = Default
	}

	switch config.Algorithm {
	case None:
		return &noneCompressor{base{algorithm: None, level: config.Level}}, nil
	case Gzip:
		return newGzipCompressor(config), nil
	case Snappy:
		return &snappyCompressor{base{algorithm: Snappy, level: config.Level}}, nil
	case LZ4:
		return newLZ4Compressor(config), nil
	case Zstd:
		return newZstdCompressor(config)
	case S2:
		return &s2Compressor{base{algorithm: S2, level: config.Level}}, nil
	case Deflate:
		return newDeflateCompressor(config), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %q", config.Algorithm)
	}
}

// CompressorPool reuses compressor instances. Beneficial for algorithms
// with expensive setup, and safe for concurrent use.
type CompressorPool struct {
	pool   sync.Pool
	config *Config
}

// NewCompressorPool creates a pool producing compressors for config.
func NewCompressorPool(config *Config) *CompressorPool {
	if config == nil {
		config = DefaultConfig()
	}

	cp := &CompressorPool{config: config}
	cp.pool.New = func() interface{} {
		c, _ := NewCompressor(config)
		return c
	}
	return cp
}

// Get takes a compressor from the pool.
func (cp *CompressorPool) Get() Compressor {
	return cp.pool.Get().(Compressor)
}

// Put returns a compressor to the pool.
func (cp *CompressorPool) Put(c Compressor) {
	cp.pool.Put(c)
}

// Compress compresses data with a pooled compressor.
func (cp *CompressorPool) Compress(data []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)
	return c.Compress(data)
}

// Decompress decompresses data with a pooled compressor.
func (cp *CompressorPool) Decompress(data []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)
	return c.Decompress(data)
}

type base struct {
	algorithm Algorithm
	level     Level
}

func (b *base) Algorithm() Algorithm { return b.algorithm }

func (b *base) Level() Level { return b.level }

type noneCompressor struct {
	base
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (nc *noneCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}

func (nc *noneCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}

type gzipCompressor struct {
	base
	gzLevel int
	writers sync.Pool
	readers sync.Pool
}

func newGzipCompressor(config *Config) *gzipCompressor {
	gc := &gzipCompressor{
		base:    base{algorithm: Gzip, level: config.Level},
		gzLevel: mapFlateLevel(config.Level),
	}
	gc.writers.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gc.gzLevel)
		return w
	}
	gc.readers.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBytesBuffer()
	defer pool.PutBytesBuffer(buf)

	w := gc.writers.Get().(*gzip.Writer)
	defer gc.writers.Put(w)

	w.Reset(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r := gc.readers.Get().(*gzip.Reader)
	defer gc.readers.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return readOut(r)
}

func (gc *gzipCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := gc.writers.Get().(*gzip.Writer)
	defer gc.writers.Put(w)

	w.Reset(dst)
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (gc *gzipCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	r := gc.readers.Get().(*gzip.Reader)
	defer gc.readers.Put(r)

	if err := r.Reset(src); err != nil {
		return err
	}
	_, err := io.Copy(dst, r)
	return err
}

type deflateCompressor struct {
	base
	flLevel int
	writers sync.Pool
}

func newDeflateCompressor(config *Config) *deflateCompressor {
	dc := &deflateCompressor{
		base:    base{algorithm: Deflate, level: config.Level},
		flLevel: mapFlateLevel(config.Level),
	}
	dc.writers.New = func() interface{} {
		w, _ := flate.NewWriter(io.Discard, dc.flLevel)
		return w
	}
	return dc
}

func (dc *deflateCompressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBytesBuffer()
	defer pool.PutBytesBuffer(buf)

	w := dc.writers.Get().(*flate.Writer)
	defer dc.writers.Put(w)

	w.Reset(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (dc *deflateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return readOut(r)
}

func (dc *deflateCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := dc.writers.Get().(*flate.Writer)
	defer dc.writers.Put(w)

	w.Reset(dst)
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (dc *deflateCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	r := flate.NewReader(src)
	defer r.Close()
	_, err := io.Copy(dst, r)
	return err
}

type snappyCompressor struct {
	base
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (sc *snappyCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := snappy.NewBufferedWriter(dst)
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (sc *snappyCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, snappy.NewReader(src))
	return err
}

type s2Compressor struct {
	base
}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

func (sc *s2Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := s2.NewWriter(dst)
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (sc *s2Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, s2.NewReader(src))
	return err
}

type zstdCompressor struct {
	base
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor(config *Config) (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(mapZstdLevel(config.Level)))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{
		base:    base{algorithm: Zstd, level: config.Level},
		encoder: enc,
		decoder: dec,
	}, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	return zc.encoder.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	return zc.decoder.DecodeAll(data, nil)
}

func (zc *zstdCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(zc.level)))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (zc *zstdCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	r, err := zstd.NewReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(dst, r)
	return err
}

type lz4Compressor struct {
	base
	lz4Level lz4.CompressionLevel
}

func newLZ4Compressor(config *Config) *lz4Compressor {
	return &lz4Compressor{
		base:     base{algorithm: LZ4, level: config.Level},
		lz4Level: mapLZ4Level(config.Level),
	}
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	buf := pool.GetBytesBuffer()
	defer pool.PutBytesBuffer(buf)

	if err := lc.CompressStream(buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return readOut(lz4.NewReader(bytes.NewReader(data)))
}

func (lc *lz4Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(lc.lz4Level)); err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (lc *lz4Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, lz4.NewReader(src))
	return err
}

// mapFlateLevel maps Level onto the 1..9 scale shared by gzip and flate.
func mapFlateLevel(l Level) int {
	switch {
	case l <= Fastest:
		return flate.BestSpeed
	case l >= Best:
		return flate.BestCompression
	default:
		return int(l)
	}
}

func mapZstdLevel(l Level) zstd.EncoderLevel {
	switch {
	case l <= Fastest:
		return zstd.SpeedFastest
	case l >= Best:
		return zstd.SpeedBestCompression
	case l >= Better:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapLZ4Level(l Level) lz4.CompressionLevel {
	switch {
	case l <= Fastest:
		return lz4.Fast
	case l >= Best:
		return lz4.Level9
	case l >= Better:
		return lz4.Level7
	default:
		return lz4.Level5
	}
}

// copyOut copies a pooled buffer's contents into a fresh slice that can
// outlive the buffer's return to the pool.
func copyOut(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func readOut(r io.Reader) ([]byte, error) {
	buf := pool.GetBytesBuffer()
	defer pool.PutBytesBuffer(buf)

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return copyOut(buf), nil
}
