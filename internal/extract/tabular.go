package extract

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

// Record is one structured row from a tabular source: field name to typed
// value, field names matching the source's schema.
type Record map[string]any

// Schema parses the header row of a delimited file and returns the ordered
// column names. On any parse error it returns nil: tabular indexing is
// best-effort and must never abort the text-indexing path for the same
// source.
func Schema(data []byte) []string {
	header, _ := parseTabular(data)
	return header
}

// Rows parses the data rows of a delimited file into field->value records,
// coercing cells to int64, float64 or bool where they parse cleanly.
// Returns nil on parse error, same policy as Schema.
func Rows(data []byte) []Record {
	header, rows := parseTabular(data)
	if len(header) == 0 {
		return nil
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = coerceCell(row[i])
			}
		}
		records = append(records, rec)
	}
	return records
}

// parseTabular reads a delimited file with a header row.
// Both return values are nil when parsing fails or there is no header.
func parseTabular(data []byte) (header []string, rows [][]string) {
	if len(data) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1 // tolerate ragged rows

	all, err := r.ReadAll()
	if err != nil || len(all) == 0 {
		return nil, nil
	}

	header = make([]string, len(all[0]))
	for i, col := range all[0] {
		header[i] = strings.TrimSpace(col)
	}
	return header, all[1:]
}

// sniffDelimiter picks the delimiter with the most occurrences in the first
// line: comma, tab, or semicolon. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	line := data
	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		line = data[:idx]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, cand := range []byte{'\t', ';'} {
		if n := bytes.Count(line, []byte{cand}); n > bestCount {
			best, bestCount = rune(cand), n
		}
	}
	return best
}

// coerceCell converts a cell to int64, float64 or bool if it parses as one,
// otherwise returns the trimmed string.
func coerceCell(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(trimmed); err == nil {
		return b
	}
	return trimmed
}
