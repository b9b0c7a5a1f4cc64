// Package table keeps a bounded history of numeric columns: a
// fixed-capacity ring buffer of rows addressed by logical row index.
//
// A header row starts a new generation: the generation key increments,
// column names are replaced, and retained history resets. Data rows append
// within the current generation, evicting the oldest row once the window
// is full. Logical row indices strictly increase for the lifetime of a
// generation even as physical slots are recycled, so a consumer can ask
// for "rows 140 through 160" and be told loudly when that range has
// already been evicted.
//
// Slices are copies. A Slice taken earlier stays valid and unchanged no
// matter how many rows are pushed afterwards.
package table

import (
	"fmt"
	"sync"

	"github.com/ajitpratap0/serialscope/pkg/errors"
	"github.com/ajitpratap0/serialscope/pkg/models"
)

// Range is a half-open window [Start, End) of logical row indices.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of rows in the range.
func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Column is one named value sequence of a Slice. ID is stable for the
// lifetime of a generation ("{key}-{name}"), so a consumer can tell "same
// column, more rows" apart from "new column after a reset".
type Column struct {
	Name   string    `json:"name"`
	ID     string    `json:"id"`
	Values []float64 `json:"values"`
}

// Slice is a read-only copy of a sub-range of the retained window, one
// value sequence per column, all aligned to Range.
type Slice struct {
	Key     int      `json:"key"`
	Range   Range    `json:"range"`
	Columns []Column `json:"columns"`
}

// ColumnNames returns the slice's column names in order.
func (s Slice) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Stats is a point-in-time snapshot of window state and lifetime counters.
type Stats struct {
	Key      int   `json:"key"`
	Columns  int   `json:"columns"`
	Rows     int   `json:"rows"`
	Limit    int   `json:"limit"`
	Range    Range `json:"range"`
	Pushed   int64 `json:"pushed"`
	Evicted  int64 `json:"evicted"`
	Rejected int64 `json:"rejected"`
}

// Window is the windowed table engine. One producer pushes rows; any
// number of readers may take slices concurrently.
type Window struct {
	mu    sync.RWMutex
	limit int

	key   int      // generation counter, 0 until the first row
	names []string // nil while no generation exists
	cols  [][]float64

	head  int // physical index of the oldest retained row
	count int // retained rows, <= limit
	start int // logical index of the oldest retained row

	pushed   int64
	evicted  int64
	rejected int64
}

// NewWindow creates a Window retaining at most limit rows per generation.
func NewWindow(limit int) (*Window, error) {
	if limit < 1 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "row limit must be positive, got %d", limit)
	}
	return &Window{limit: limit}, nil
}

// Push applies one row. A HeaderRow starts a new generation named by its
// fields. A DataRow appends to the current generation, implicitly starting
// generation 1 with synthetic names "Column 1..N" if no header has been
// seen; when the window is full the oldest row is evicted first. A DataRow
// whose arity differs from the active column count is rejected with a
// validation error and the window is left unchanged; rows keep being
// rejected until the next HeaderRow re-establishes the schema.
func (w *Window) Push(row models.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch r := row.(type) {
	case models.HeaderRow:
		w.reset(append([]string(nil), r.Fields...))
		return nil
	case models.DataRow:
		return w.append(r.Values)
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unsupported row type %T", row)
	}
}

// reset starts a new generation with the given column names.
func (w *Window) reset(names []string) {
	w.key++
	w.names = names
	w.cols = make([][]float64, len(names))
	for i := range w.cols {
		w.cols[i] = make([]float64, w.limit)
	}
	w.head = 0
	w.count = 0
	w.start = 0
}

func (w *Window) append(values []float64) error {
	if w.names == nil {
		names := make([]string, len(values))
		for i := range names {
			names[i] = fmt.Sprintf("Column %d", i+1)
		}
		w.reset(names)
	}

	if len(values) != len(w.names) {
		w.rejected++
		return errors.Newf(errors.ErrorTypeValidation,
			"row arity %d does not match the %d active columns", len(values), len(w.names))
	}

	if w.count == w.limit {
		w.head = (w.head + 1) % w.limit
		w.count--
		w.start++
		w.evicted++
	}

	pos := (w.head + w.count) % w.limit
	for i, col := range w.cols {
		col[pos] = values[i]
	}
	w.count++
	w.pushed++
	return nil
}

// Clear returns the window to the no-table state. The generation key is
// not reset: it keeps increasing across Clear so that slice identities
// from before the clear can never collide with later generations.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.names = nil
	w.cols = nil
	w.head = 0
	w.count = 0
	w.start = 0
}

// Key returns the current generation key, 0 if no generation exists.
func (w *Window) Key() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.key
}

// ColumnNames returns a copy of the active column names, nil if no
// generation exists.
func (w *Window) ColumnNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.names == nil {
		return nil
	}
	return append([]string(nil), w.names...)
}

// Range returns the logical row-index window currently retained.
func (w *Window) Range() Range {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Range{Start: w.start, End: w.start + w.count}
}

// Len returns the number of retained rows.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

// Limit returns the configured row capacity.
func (w *Window) Limit() int { return w.limit }

// Stats returns a snapshot of window state and lifetime counters.
func (w *Window) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Key:      w.key,
		Columns:  len(w.names),
		Rows:     w.count,
		Limit:    w.limit,
		Range:    Range{Start: w.start, End: w.start + w.count},
		Pushed:   w.pushed,
		Evicted:  w.evicted,
		Rejected: w.rejected,
	}
}

// Slice copies the requested sub-range of the retained window. The range
// must lie within Range(); anything else is a caller bookkeeping bug and
// fails with a validation error rather than being clamped.
func (w *Window) Slice(r Range) (Slice, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.names == nil {
		return Slice{}, errors.New(errors.ErrorTypeValidation, "no table exists; nothing to slice")
	}
	retained := Range{Start: w.start, End: w.start + w.count}
	if r.Start > r.End || r.Start < retained.Start || r.End > retained.End {
		return Slice{}, errors.Newf(errors.ErrorTypeValidation,
			"requested range %s is outside the retained range %s", r, retained)
	}

	s := Slice{
		Key:     w.key,
		Range:   r,
		Columns: make([]Column, len(w.names)),
	}
	for i, name := range w.names {
		s.Columns[i] = Column{
			Name:   name,
			ID:     fmt.Sprintf("%d-%s", w.key, name),
			Values: w.copyRange(w.cols[i], r),
		}
	}
	return s, nil
}

// copyRange copies the logical window r out of one circular column buffer
// in at most two contiguous copies.
func (w *Window) copyRange(col []float64, r Range) []float64 {
	n := r.Len()
	dst := make([]float64, n)
	if n == 0 {
		return dst
	}
	p0 := (w.head + (r.Start - w.start)) % w.limit
	first := n
	if rest := w.limit - p0; first > rest {
		first = rest
	}
	copy(dst[:first], col[p0:p0+first])
	copy(dst[first:], col[:n-first])
	return dst
}
