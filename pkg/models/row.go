// Package models provides the shared data model for serialscope: the rows
// produced by the parsing stage and consumed by the table buffer.
//
// A Row is a tagged variant. Classification is purely a function of the
// row's fields, independent of stream history: a row whose every field
// parses as a number is a DataRow; a row with at least one non-numeric
// field is a HeaderRow. Header rows (re)establish column names.
package models

// Row is one parsed CSV line, classified as either a HeaderRow or a
// DataRow. The interface is sealed; the only implementations live in this
// package.
type Row interface {
	// Arity returns the number of fields or values in the row.
	Arity() int

	// Kind returns "header" or "data", suitable for logging and metric
	// labels.
	Kind() string

	isRow()
}

// HeaderRow carries the original field strings of a row with at least one
// non-numeric field. Its fields become the column names of the next table
// generation.
type HeaderRow struct {
	Fields []string `json:"fields"`
}

// DataRow carries the numeric values of a row whose every field parsed as
// a number, in field order.
type DataRow struct {
	Values []float64 `json:"values"`
}

// NewHeaderRow creates a HeaderRow over the given field strings.
func NewHeaderRow(fields []string) HeaderRow {
	return HeaderRow{Fields: fields}
}

// NewDataRow creates a DataRow over the given values.
func NewDataRow(values []float64) DataRow {
	return DataRow{Values: values}
}

// Arity returns the number of header fields.
func (r HeaderRow) Arity() int { return len(r.Fields) }

// Kind returns "header".
func (r HeaderRow) Kind() string { return "header" }

func (r HeaderRow) isRow() {}

// Arity returns the number of values.
func (r DataRow) Arity() int { return len(r.Values) }

// Kind returns "data".
func (r DataRow) Kind() string { return "data" }

func (r DataRow) isRow() {}
