// Package rowparse converts single CSV lines into structured rows.
//
// The dialect is deliberately narrow: comma-delimited fields, double-quote
// quoting with doubled quotes as escapes, and no multi-line fields. A line
// that violates the dialect is refused rather than repaired; callers skip
// refused lines and continue with the stream.
//
// Classification is history-free. A line whose every field parses as a
// number becomes a DataRow; any non-numeric field makes the whole line a
// HeaderRow, which is how column names are (re)established. A bare single
// token without quotes or commas is accepted only when numeric; anything
// else single-field and unquoted is refused. There is no comment syntax.
package rowparse

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ajitpratap0/serialscope/pkg/models"
)

// ErrRefused reports that a line or field does not match the dialect. It is
// a skip signal, not a failure: refused input is expected on a live stream.
var ErrRefused = errors.New("rowparse: input refused")

// IsRefused reports whether err is a dialect refusal.
func IsRefused(err error) bool {
	return errors.Is(err, ErrRefused)
}

// ParseFields splits one line into its CSV fields, or refuses.
//
// An empty line is refused. A line with no leading quote and no comma is a
// bare single field, accepted only if it is a valid number free of CR and
// LF. Any other line is scanned as a CSV record: quoted fields may contain
// commas and doubled-quote escapes but no CR or LF; unquoted fields must
// not contain a quote, CR, or LF. A trailing comma yields a trailing empty
// field.
func ParseFields(line string) ([]string, error) {
	if line == "" {
		return nil, ErrRefused
	}
	if line[0] != '"' && !strings.Contains(line, ",") {
		if strings.ContainsAny(line, "\r\n") {
			return nil, ErrRefused
		}
		if _, err := ParseNumber(line); err != nil {
			return nil, ErrRefused
		}
		return []string{line}, nil
	}

	var fields []string
	pos := 0
	for {
		field, next, err := scanField(line, pos)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
		if next >= len(line) {
			return fields, nil
		}
		pos = next + 1
	}
}

// scanField reads one field starting at pos and returns it together with
// the index of the delimiter that ended it (a comma or end of line).
func scanField(line string, pos int) (string, int, error) {
	if pos < len(line) && line[pos] == '"' {
		return scanQuoted(line, pos)
	}
	return scanBare(line, pos)
}

func scanBare(line string, pos int) (string, int, error) {
	for i := pos; i < len(line); i++ {
		switch line[i] {
		case ',':
			return line[pos:i], i, nil
		case '"', '\r', '\n':
			return "", 0, ErrRefused
		}
	}
	return line[pos:], len(line), nil
}

func scanQuoted(line string, pos int) (string, int, error) {
	var b strings.Builder
	i := pos + 1
	for i < len(line) {
		c := line[i]
		switch c {
		case '"':
			if i+1 < len(line) && line[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			i++
			if i == len(line) || line[i] == ',' {
				return b.String(), i, nil
			}
			return "", 0, ErrRefused
		case '\r', '\n':
			return "", 0, ErrRefused
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, ErrRefused
}

// ParseNumber converts one field to a float64, or refuses.
//
// Surrounding whitespace is trimmed. The exact literal "NaN" produces NaN;
// no other spelling may, so garbage text never coerces to NaN and
// succeeds. Every representation of negative zero is normalized to
// positive zero. Values beyond the float64 range saturate to ±Inf rather
// than refusing, matching how the readings would overflow on the wire.
func ParseNumber(field string) (float64, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, ErrRefused
	}
	if s == "NaN" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, ErrRefused
	}
	if math.IsNaN(v) {
		return 0, ErrRefused
	}
	if v == 0 {
		return 0, nil
	}
	return v, nil
}

// FormatNumber renders v in the shortest form that ParseNumber reads back
// bit-for-bit, which keeps exported values round-trippable.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseRow classifies one line as a HeaderRow or DataRow, or refuses.
//
// A line whose fields all parse as numbers is a DataRow; one trailing
// empty field from a terminal comma is dropped when everything before it
// is numeric. Any other non-numeric field makes the line a HeaderRow
// carrying the original field strings.
func ParseRow(line string) (models.Row, error) {
	fields, err := ParseFields(line)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := ParseNumber(f)
		if err != nil {
			break
		}
		values = append(values, v)
	}

	switch {
	case len(values) == len(fields):
		return models.NewDataRow(values), nil
	case len(fields) >= 2 && len(values) == len(fields)-1 && fields[len(fields)-1] == "":
		return models.NewDataRow(values), nil
	}
	return models.NewHeaderRow(fields), nil
}
