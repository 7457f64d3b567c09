// Package table reads and writes the CSV survey tables scored by inference
// and compared by the audit. Cells are kept as strings; empty cells stay
// empty strings.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

const bom = "\ufeff"

// Table is a header plus rows of equal width.
type Table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

// New creates a table. Short rows are padded with empty cells; rows wider
// than the header are rejected.
func New(header []string, rows [][]string) (*Table, error) {
	if len(header) == 0 {
		return nil, errors.ValidationError("table has no header row")
	}
	t := &Table{
		header: append([]string(nil), header...),
		index:  make(map[string]int, len(header)),
		rows:   make([][]string, 0, len(rows)),
	}
	for i, name := range t.header {
		// Duplicate names resolve to the first occurrence.
		if _, ok := t.index[name]; !ok {
			t.index[name] = i
		}
	}
	for i, row := range rows {
		if len(row) > len(header) {
			return nil, errors.ValidationError(
				fmt.Sprintf("row %d has %d cells, header has %d", i+1, len(row), len(header)))
		}
		cells := make([]string, len(header))
		copy(cells, row)
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

// Read parses CSV from r. The first record is the header.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("parsing csv: %v", err))
	}
	if len(records) == 0 {
		return nil, errors.ValidationError("table has no header row")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}
	return New(header, records[1:])
}

// ReadFile reads the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.ConfigurationError(fmt.Sprintf("table %s does not exist", path)).WithDetail("path", path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening table: %w", err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// Write encodes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.header); err != nil {
		return err
	}
	if err := writer.WriteAll(t.rows); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

// WriteFile writes the table to path, creating parent directories.
func (t *Table) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Header returns a copy of the column names.
func (t *Table) Header() []string {
	return append([]string(nil), t.header...)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Column returns the index of name.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Require fails with a SchemaError naming the first missing column.
func (t *Table) Require(names ...string) error {
	for _, name := range names {
		if _, ok := t.index[name]; !ok {
			return errors.SchemaError(name)
		}
	}
	return nil
}

// Cell returns the value at row in column col, or "" when col is unknown.
func (t *Table) Cell(row int, col string) string {
	i, ok := t.index[col]
	if !ok {
		return ""
	}
	return t.rows[row][i]
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Set stores value at row in column col.
func (t *Table) Set(row int, col, value string) error {
	i, ok := t.index[col]
	if !ok {
		return errors.SchemaError(col)
	}
	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("row %d out of range [0, %d)", row, len(t.rows))
	}
	t.rows[row][i] = value
	return nil
}

// WithColumns returns a copy of the table with names added as empty
// columns after the existing ones. Names already present are kept in place.
// The receiver is not modified.
func (t *Table) WithColumns(names ...string) *Table {
	out := &Table{
		header: t.Header(),
		index:  make(map[string]int, len(t.index)+len(names)),
		rows:   make([][]string, len(t.rows)),
	}
	for name, i := range t.index {
		out.index[name] = i
	}
	for _, name := range names {
		if _, ok := out.index[name]; ok {
			continue
		}
		out.index[name] = len(out.header)
		out.header = append(out.header, name)
	}
	for i, row := range t.rows {
		cells := make([]string, len(out.header))
		copy(cells, row)
		out.rows[i] = cells
	}
	return out
}
