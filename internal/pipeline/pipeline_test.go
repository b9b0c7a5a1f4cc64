package pipeline

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/serialscope/pkg/config"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/source"
	"github.com/ajitpratap0/serialscope/pkg/testutil"
)

func testConfig(rowLimit int) *config.Config {
	cfg := config.NewDefaultConfig("pipeline-test")
	cfg.Pipeline.RowLimit = rowLimit
	cfg.Pipeline.LogHead = 4
	cfg.Pipeline.LogTail = 4
	return cfg
}

func runOnce(t *testing.T, cfg *config.Config, input string) *Pipeline {
	t.Helper()

	src := source.NewReaderSource("pipeline", strings.NewReader(input))
	p, err := New(cfg, src)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))
	return p
}

func TestPipelineBuildsTable(t *testing.T) {
	p := runOnce(t, testConfig(100), "Time,Temp\r\n0.1,21.5\n0.2,22.1\n")

	w := p.Table()
	assert.Equal(t, 1, w.Key())
	assert.Equal(t, []string{"Time", "Temp"}, w.ColumnNames())

	slice, err := w.Slice(w.Range())
	require.NoError(t, err)
	require.Len(t, slice.Columns, 2)
	assert.Equal(t, []float64{0.1, 0.2}, slice.Columns[0].Values)
	assert.Equal(t, []float64{21.5, 22.1}, slice.Columns[1].Values)

	stats := p.Stats()
	assert.Equal(t, int64(3), stats.Lines)
	assert.Equal(t, int64(1), stats.HeaderRows)
	assert.Equal(t, int64(2), stats.DataRows)
	assert.Zero(t, stats.Refused)
	assert.Zero(t, stats.Rejected)
	assert.GreaterOrEqual(t, stats.Chunks, int64(1))
	assert.Positive(t, stats.Duration)
	assert.Equal(t, "reader:pipeline", stats.Source)
	assert.NotEmpty(t, stats.SessionID)

	assert.Equal(t, int64(3), p.Log().Total())
}

func TestPipelineImplicitHeader(t *testing.T) {
	p := runOnce(t, testConfig(100), "1,2\n3,4\n")

	w := p.Table()
	assert.Equal(t, []string{"Column 1", "Column 2"}, w.ColumnNames())
	assert.Equal(t, 2, w.Len())

	stats := p.Stats()
	assert.Zero(t, stats.HeaderRows)
	assert.Equal(t, int64(2), stats.DataRows)
}

func TestPipelineRefusalsAndRejections(t *testing.T) {
	p := runOnce(t, testConfig(100), "Time,Temp\nbad\"line\n0.1\n0.2,3,4\n1,2\n")

	stats := p.Stats()
	assert.Equal(t, int64(5), stats.Lines)
	assert.Equal(t, int64(1), stats.Refused)
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Equal(t, int64(1), stats.HeaderRows)
	assert.Equal(t, int64(1), stats.DataRows)

	slice, err := p.Table().Slice(p.Table().Range())
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, slice.Columns[0].Values)
	assert.Equal(t, []float64{2}, slice.Columns[1].Values)
}

func TestPipelineEviction(t *testing.T) {
	p := runOnce(t, testConfig(2), "\"Time\"\n1\n2\n3\n4\n")

	stats := p.Stats()
	assert.Equal(t, int64(4), stats.DataRows)
	assert.Equal(t, int64(2), stats.Table.Evicted)
	assert.Equal(t, 2, stats.Table.Range.Start)
	assert.Equal(t, 4, stats.Table.Range.End)

	slice, err := p.Table().Slice(p.Table().Range())
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, slice.Columns[0].Values)
}

func TestPipelineUnterminatedFinalLine(t *testing.T) {
	p := runOnce(t, testConfig(100), "1,2\n3,4")

	assert.Equal(t, int64(2), p.Stats().DataRows)
	assert.Equal(t, 2, p.Table().Len())
}

func TestPipelineStopMidStream(t *testing.T) {
	src := source.NewReaderSource("slow",
		strings.NewReader(strings.Repeat("1,2\n", 1000)),
		source.WithChunkSize(4),
		source.WithPacing(2*time.Millisecond))

	p, err := New(testConfig(100), src)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(context.Background()) }()

	testutil.AssertEventually(t, func() bool {
		return p.Stats().DataRows > 0
	}, 5*time.Second, "no rows processed before stop")

	p.Stop()
	require.NoError(t, <-errCh)

	stats := p.Stats()
	assert.Positive(t, stats.DataRows)
	assert.Less(t, stats.DataRows, int64(1000))

	// Safe to call again after Run returned.
	p.Stop()
}

type leasingSource struct {
	*source.ReaderSource
	releases atomic.Int32
}

func (s *leasingSource) Release() error {
	s.releases.Add(1)
	return nil
}

func TestPipelineReleasesLeaseOnce(t *testing.T) {
	t.Run("end of stream", func(t *testing.T) {
		src := &leasingSource{
			ReaderSource: source.NewReaderSource("leased", strings.NewReader("1\n2\n")),
		}
		p, err := New(testConfig(10), src)
		require.NoError(t, err)
		require.NoError(t, p.Run(context.Background()))

		assert.Equal(t, int32(1), src.releases.Load())
	})

	t.Run("stopped", func(t *testing.T) {
		src := &leasingSource{
			ReaderSource: source.NewReaderSource("leased",
				strings.NewReader(strings.Repeat("1\n", 1000)),
				source.WithChunkSize(2),
				source.WithPacing(2*time.Millisecond)),
		}
		p, err := New(testConfig(10), src)
		require.NoError(t, err)

		errCh := make(chan error, 1)
		go func() { errCh <- p.Run(context.Background()) }()
		testutil.AssertEventually(t, func() bool {
			return p.Stats().DataRows > 0
		}, 5*time.Second, "no rows processed before stop")

		p.Stop()
		require.NoError(t, <-errCh)

		assert.Equal(t, int32(1), src.releases.Load())
	})
}

type failingReader struct {
	reads int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.reads == 0 {
		r.reads++
		return copy(p, "1\n"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestPipelineReturnsSourceError(t *testing.T) {
	src := source.NewReaderSource("failing", &failingReader{})
	p, err := New(testConfig(10), src)
	require.NoError(t, err)

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))

	// The rows read before the failure are kept.
	assert.Equal(t, 1, p.Table().Len())
}

func TestPipelineTailLog(t *testing.T) {
	cfg := testConfig(100)
	cfg.Pipeline.LogHead = 2
	cfg.Pipeline.LogTail = 2

	p := runOnce(t, cfg, "1\n2\n3\n4\n5\n6\n")

	snap := p.Log().Snapshot()
	assert.Equal(t, []string{"1", "2"}, snap.Head)
	assert.Equal(t, []string{"5", "6"}, snap.Tail)
	assert.Equal(t, int64(6), snap.Total)
	assert.Equal(t, int64(2), snap.Dropped)
}

func TestPipelineRunTwiceFails(t *testing.T) {
	p := runOnce(t, testConfig(10), "1\n")

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestPipelineStatsFreezeAfterRun(t *testing.T) {
	p := runOnce(t, testConfig(10), "1\n2\n")

	first := p.Stats()
	time.Sleep(10 * time.Millisecond)
	second := p.Stats()
	assert.Equal(t, first.Duration, second.Duration)
	assert.Positive(t, second.RowsPerSecond)
}

func TestNewValidation(t *testing.T) {
	_, err := New(testConfig(10), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	cfg := testConfig(10)
	cfg.Pipeline.RowLimit = -1
	_, err = New(cfg, source.NewReaderSource("x", strings.NewReader("")))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
