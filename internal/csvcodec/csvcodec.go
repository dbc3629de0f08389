// Package csvcodec converts tables of scalars to and from RFC 4180 style CSV.
//
// Encode and Decode are exact inverses for any rows with at least one field,
// including fields that contain commas, quotes, CR or LF. encoding/csv is not
// used because its reader rewrites CRLF inside quoted fields to LF, which
// would break that guarantee.
package csvcodec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Encode renders rows as CSV text. Rows are joined with "\n" and the output
// has no trailing newline.
//
// Fields are stringified with Format. A field is quoted when it contains a
// comma, double quote, CR or LF; inner quotes are doubled.
func Encode(rows [][]any) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		// A lone empty field would otherwise encode as an empty line.
		if len(row) == 1 && Format(row[0]) == "" {
			b.WriteString(`""`)
			continue
		}
		for j, field := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			writeField(&b, Format(field))
		}
	}
	return b.String()
}

// EncodeStrings is Encode for rows that are already strings.
func EncodeStrings(rows [][]string) string {
	generic := make([][]any, len(rows))
	for i, row := range rows {
		generic[i] = make([]any, len(row))
		for j, s := range row {
			generic[i][j] = s
		}
	}
	return Encode(generic)
}

func writeField(b *strings.Builder, s string) {
	if !strings.ContainsAny(s, ",\"\r\n") {
		b.WriteString(s)
		return
	}
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(s, `"`, `""`))
	b.WriteByte('"')
}

// Format stringifies a scalar field. nil becomes "", booleans become
// "true"/"false" and times use RFC 3339 with nanoseconds in their own
// offset.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Decode parses CSV text into rows of strings.
//
// Inside quotes a doubled quote is a literal quote and a single quote closes
// the quoted section. Outside quotes a comma ends the field, and CR, LF or a
// CRLF pair ends the row. A final row without a terminator is kept. Empty
// input yields no rows.
func Decode(text string) [][]string {
	var (
		rows     [][]string
		row      []string
		field    strings.Builder
		inQuotes bool
		started  bool
	)

	endRow := func() {
		row = append(row, field.String())
		rows = append(rows, row)
		row = nil
		field.Reset()
		started = false
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inQuotes {
			if c == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					field.WriteByte('"')
					i++
				} else {
					inQuotes = false
				}
				continue
			}
			field.WriteByte(c)
			continue
		}

		switch c {
		case '"':
			inQuotes = true
			started = true
		case ',':
			row = append(row, field.String())
			field.Reset()
			started = true
		case '\r', '\n':
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			endRow()
		default:
			field.WriteByte(c)
			started = true
		}
	}

	if started {
		endRow()
	}
	return rows
}
