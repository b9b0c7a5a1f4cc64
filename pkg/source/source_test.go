package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/serialscope/pkg/compression"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/testutil"
)

// drain collects chunks until the stream ends and returns the terminal
// error, if any.
func drain(t *testing.T, src Source) ([]byte, error) {
	t.Helper()
	var buf bytes.Buffer
	for chunk := range src.Chunks() {
		buf.Write(chunk)
	}
	return buf.Bytes(), <-src.Errors()
}

func TestReaderSourceStreamsAll(t *testing.T) {
	input := strings.Repeat("Time,Temp\r\n0.1,21.5\r\n", 50)

	src := NewReaderSource("test", strings.NewReader(input), WithChunkSize(7))
	assert.Equal(t, "reader:test", src.Name())

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	got, err := drain(t, src)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))

	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())
}

func TestReaderSourceOpenTwice(t *testing.T) {
	src := NewReaderSource("twice", strings.NewReader("x"))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	err := src.Open(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	src.Close()
}

func TestReaderSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewReaderSource("pipe", pr, WithChannelBuffer(0))
	require.NoError(t, src.Open(ctx))

	go pw.Write([]byte("abc"))
	first := <-src.Chunks()
	assert.Equal(t, "abc", string(first))

	cancel()
	// Unblock the pending read so the pump observes cancellation.
	go pw.Write([]byte("more"))

	testutil.AssertEventually(t, func() bool {
		select {
		case _, ok := <-src.Chunks():
			return !ok
		default:
			return false
		}
	}, 5*time.Second, "chunk channel should close after cancel")
}

func TestReaderSourceWithDecompression(t *testing.T) {
	input := strings.Repeat("0.1,21.5\n", 200)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)
	var compressed bytes.Buffer
	require.NoError(t, comp.CompressStream(&compressed, strings.NewReader(input)))

	src := NewReaderSource("gz", &compressed, WithDecompression(compression.Gzip))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	got, err := drain(t, src)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
	assert.NoError(t, src.Close())
}

func TestFileSourceReplay(t *testing.T) {
	input := strings.Repeat("Time,Temp\n0.1,21.5\n", 100)
	path := filepath.Join(t.TempDir(), "capture.csv")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o644))

	src := NewFileSource(path, WithChunkSize(16))
	assert.Equal(t, "file:capture.csv", src.Name())

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	got, err := drain(t, src)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
	assert.NoError(t, src.Close())
}

func TestFileSourceCompressedByExtension(t *testing.T) {
	input := strings.Repeat("1,2,3\n", 500)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)
	var compressed bytes.Buffer
	require.NoError(t, comp.CompressStream(&compressed, strings.NewReader(input)))

	path := filepath.Join(t.TempDir(), "capture.csv.gz")
	require.NoError(t, os.WriteFile(path, compressed.Bytes(), 0o644))

	src := NewFileSource(path)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	got, err := drain(t, src)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
	assert.NoError(t, src.Close())
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.csv"))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	err := src.Open(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestFileSourcePacing(t *testing.T) {
	input := "aaaaabbbbbcccccddddd" // 4 chunks of 5
	path := filepath.Join(t.TempDir(), "paced.csv")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o644))

	src := NewFileSource(path, WithChunkSize(5), WithPacing(time.Millisecond))

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, src.Open(ctx))

	start := time.Now()
	got, err := drain(t, src)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, input, string(got))
	assert.GreaterOrEqual(t, elapsed, 3*time.Millisecond)
	assert.NoError(t, src.Close())
}

func TestAlgorithmForPath(t *testing.T) {
	cases := map[string]compression.Algorithm{
		"capture.csv":     compression.None,
		"capture.csv.gz":  compression.Gzip,
		"capture.GZ":      compression.Gzip,
		"capture.csv.zst": compression.Zstd,
		"capture.zstd":    compression.Zstd,
		"capture.lz4":     compression.LZ4,
		"capture.s2":      compression.S2,
		"capture.snappy":  compression.Snappy,
		"capture.sz":      compression.Snappy,
		"capture.zz":      compression.Deflate,
		"capture":         compression.None,
	}
	for path, want := range cases {
		assert.Equal(t, want, algorithmForPath(path), "path %q", path)
	}
}
