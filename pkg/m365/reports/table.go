// Package reports parses the CSV usage reports served by the Graph reports
// endpoints.
package reports

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed report. Columns are looked up by normalized header name
// so that case and whitespace differences between report versions do not
// matter.
type Table struct {
	Headers []string
	columns map[string]int
	rows    [][]string
}

// Row is one data line of a Table.
type Row struct {
	table  *Table
	fields []string
}

// Parse reads a CSV report with a header line.
func Parse(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(lead, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Table{columns: map[string]int{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report header: %w", err)
	}

	t := &Table{Headers: header, columns: make(map[string]int, len(header))}
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := t.columns[key]; !dup {
			t.columns[key] = i
		}
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report row %d: %w", len(t.rows)+2, err)
		}
		if blankRecord(rec) {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, rec := range t.rows {
		out[i] = Row{table: t, fields: rec}
	}
	return out
}

// Value returns the trimmed value of the first header variant present.
// Missing columns and blank cells both yield "".
func (r Row) Value(variants ...string) string {
	for _, v := range variants {
		idx, ok := r.table.columns[normalizeHeader(v)]
		if !ok || idx >= len(r.fields) {
			continue
		}
		return strings.TrimSpace(r.fields[idx])
	}
	return ""
}

func (r Row) String(variants ...string) *string {
	v := r.Value(variants...)
	if v == "" {
		return nil
	}
	return &v
}

// Int64 parses a whole-number column at full 64-bit precision. Blank or
// malformed cells yield nil.
func (r Row) Int64(variants ...string) *int64 {
	v := strings.ReplaceAll(r.Value(variants...), ",", "")
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func (r Row) Bool(variants ...string) *bool {
	v := r.Value(variants...)
	if v == "" {
		return nil
	}
	b := strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	return &b
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006",
}

// Date parses a date column. Blank or unparseable cells yield nil.
func (r Row) Date(variants ...string) *time.Time {
	v := r.Value(variants...)
	if v == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\uFEFF' {
			return -1
		}
		return unicode.ToLower(r)
	}, h)
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
