package export

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/serialscope/pkg/compression"
	"github.com/ajitpratap0/serialscope/pkg/config"
	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/metrics"
	"github.com/ajitpratap0/serialscope/pkg/models"
	"github.com/ajitpratap0/serialscope/pkg/rowparse"
	"github.com/ajitpratap0/serialscope/pkg/table"
)

func exportConfig(format, algorithm string) config.ExportConfig {
	return config.ExportConfig{Format: format, Compression: algorithm, Level: 5}
}

// sampleSlice builds a two-column window with values that stress the
// number formatting: NaN, +Inf, extremes of the float64 range.
func sampleSlice(t *testing.T) table.Slice {
	t.Helper()

	w, err := table.NewWindow(16)
	require.NoError(t, err)

	require.NoError(t, w.Push(models.NewHeaderRow([]string{"Time", "Temp"})))
	rows := [][]float64{
		{0.1, 21.5},
		{0.2, math.NaN()},
		{0.3, math.Inf(1)},
		{1e300, -2.5e-8},
	}
	for _, r := range rows {
		require.NoError(t, w.Push(models.NewDataRow(r)))
	}

	slice, err := w.Slice(w.Range())
	require.NoError(t, err)
	return slice
}

func TestExportCSVRoundTrip(t *testing.T) {
	exp, err := NewExporter(exportConfig("csv", "none"))
	require.NoError(t, err)

	slice := sampleSlice(t)
	before := promtestutil.ToFloat64(metrics.ExportBytes.WithLabelValues("csv", "none"))

	var buf bytes.Buffer
	require.NoError(t, exp.ExportSlice(&buf, slice))

	after := promtestutil.ToFloat64(metrics.ExportBytes.WithLabelValues("csv", "none"))
	assert.Equal(t, float64(buf.Len()), after-before)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1+slice.Range.Len())

	header, err := rowparse.ParseRow(lines[0])
	require.NoError(t, err)
	require.IsType(t, models.HeaderRow{}, header)
	assert.Equal(t, slice.ColumnNames(), header.(models.HeaderRow).Fields)

	for j, line := range lines[1:] {
		row, err := rowparse.ParseRow(line)
		require.NoError(t, err)
		require.IsType(t, models.DataRow{}, row, "line %d: %q", j, line)

		values := row.(models.DataRow).Values
		require.Len(t, values, len(slice.Columns))
		for i, col := range slice.Columns {
			assert.Equal(t, math.Float64bits(col.Values[j]), math.Float64bits(values[i]),
				"row %d column %s", j, col.Name)
		}
	}
}

func TestExportJSONColumns(t *testing.T) {
	exp, err := NewExporter(exportConfig("json", "none"))
	require.NoError(t, err)

	slice := sampleSlice(t)
	var buf bytes.Buffer
	require.NoError(t, exp.ExportSlice(&buf, slice))

	var doc struct {
		Key     int `json:"key"`
		Start   int `json:"start"`
		End     int `json:"end"`
		Columns []struct {
			Name   string     `json:"name"`
			ID     string     `json:"id"`
			Values []*float64 `json:"values"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, slice.Key, doc.Key)
	assert.Equal(t, slice.Range.Start, doc.Start)
	assert.Equal(t, slice.Range.End, doc.End)
	require.Len(t, doc.Columns, 2)

	temp := doc.Columns[1]
	assert.Equal(t, "Temp", temp.Name)
	assert.Equal(t, slice.Columns[1].ID, temp.ID)
	require.Len(t, temp.Values, 4)

	require.NotNil(t, temp.Values[0])
	assert.Equal(t, 21.5, *temp.Values[0])
	assert.Nil(t, temp.Values[1], "NaN must export as null")
	assert.Nil(t, temp.Values[2], "+Inf must export as null")
}

func TestExportJSONRecords(t *testing.T) {
	exp, err := NewExporter(exportConfig("json", "none"), WithLayout(LayoutRecords))
	require.NoError(t, err)

	slice := sampleSlice(t)
	var buf bytes.Buffer
	require.NoError(t, exp.ExportSlice(&buf, slice))

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, slice.Range.Len())

	first := records[0]
	assert.Equal(t, float64(slice.Range.Start), first["index"])
	assert.Equal(t, 0.1, first["Time"])
	assert.Equal(t, 21.5, first["Temp"])

	second := records[1]
	assert.Equal(t, 0.2, second["Time"])
	val, present := second["Temp"]
	assert.True(t, present)
	assert.Nil(t, val, "NaN must export as null")
}

func TestExportCompressed(t *testing.T) {
	slice := sampleSlice(t)

	plain, err := NewExporter(exportConfig("csv", "none"))
	require.NoError(t, err)
	var want bytes.Buffer
	require.NoError(t, plain.ExportSlice(&want, slice))

	zipped, err := NewExporter(exportConfig("csv", "gzip"))
	require.NoError(t, err)
	var packed bytes.Buffer
	require.NoError(t, zipped.ExportSlice(&packed, slice))
	require.NotEqual(t, want.Bytes(), packed.Bytes())

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)
	var got bytes.Buffer
	require.NoError(t, comp.DecompressStream(&got, &packed))

	assert.Equal(t, want.String(), got.String())
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	slice := sampleSlice(t)

	exp, err := NewExporter(exportConfig("csv", "gzip"))
	require.NoError(t, err)

	path, err := exp.ExportFile(filepath.Join(dir, "nested", "slice.csv"), slice)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "slice.csv.gz"), "got %s", path)

	packed, err := os.ReadFile(path)
	require.NoError(t, err)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)
	var got bytes.Buffer
	require.NoError(t, comp.DecompressStream(&got, bytes.NewReader(packed)))

	plain, err := NewExporter(exportConfig("csv", "none"))
	require.NoError(t, err)
	var want bytes.Buffer
	require.NoError(t, plain.ExportSlice(&want, slice))

	assert.Equal(t, want.String(), got.String())
}

func TestExportFileKeepsExistingExtension(t *testing.T) {
	dir := t.TempDir()
	slice := sampleSlice(t)

	exp, err := NewExporter(exportConfig("json", "zstd"))
	require.NoError(t, err)

	path, err := exp.ExportFile(filepath.Join(dir, "slice.json.zst"), slice)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "slice.json.zst"), path)
}

func TestExportSliceWithoutColumns(t *testing.T) {
	exp, err := NewExporter(exportConfig("csv", "none"))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = exp.ExportSlice(&buf, table.Slice{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Zero(t, buf.Len())
}

func TestNewExporterRejectsBadConfig(t *testing.T) {
	_, err := NewExporter(exportConfig("xml", "none"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewExporter(exportConfig("csv", "brotli"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{
		"":     FormatCSV,
		"csv":  FormatCSV,
		"CSV":  FormatCSV,
		"json": FormatJSON,
		"JSON": FormatJSON,
	} {
		got, err := ParseFormat(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}

	_, err := ParseFormat("parquet")
	require.Error(t, err)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, compression.Default, levelFor(0))
	assert.Equal(t, compression.Fastest, levelFor(1))
	assert.Equal(t, compression.Default, levelFor(5))
	assert.Equal(t, compression.Better, levelFor(7))
	assert.Equal(t, compression.Best, levelFor(9))
}
