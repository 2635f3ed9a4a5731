// Package rows provides the CSV row model and the predicate filter the
// pipeline applies to every arriving file.
package rows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/hopper/iox"
)

// Table holds the parsed content of one CSV file: a header row and zero
// or more data rows. Field order follows the source file.
type Table struct {
	Header []string
	Rows   [][]string
}

// Load reads a CSV file into a Table.
// The first record is treated as the header. Ragged rows are tolerated;
// a file with no records at all yields an empty Table.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer iox.DiscardClose(f)

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	t := &Table{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if t.Header == nil {
			t.Header = record
			continue
		}
		t.Rows = append(t.Rows, record)
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Empty returns true if the table has no data rows.
// A header-only file counts as empty.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// ColumnIndex returns the position of the named column in the header.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, col := range t.Header {
		if col == name {
			return i, true
		}
	}
	return 0, false
}

// WriteFile writes the table as CSV to path, header first.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		iox.DiscardClose(f)
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		iox.DiscardClose(f)
		return fmt.Errorf("write rows: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
