package rows

import "strconv"

// Bounds is the configured row predicate: keep rows whose value in Column
// lies within [Min, Max], inclusive on both ends.
type Bounds struct {
	Column string
	Min    float64
	Max    float64
}

// Apply filters the table against the bounds.
//
// Pass-through policy: if the filter column is absent from the header the
// table is returned unchanged. This is deliberate, not an error — files
// without the column are forwarded whole.
//
// When the column is present, rows whose value is unparsable as a number
// are dropped: a value that cannot be compared cannot satisfy the bounds.
func (b Bounds) Apply(t *Table) *Table {
	idx, ok := t.ColumnIndex(b.Column)
	if !ok {
		return t
	}

	kept := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if idx >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			continue
		}
		if v >= b.Min && v <= b.Max {
			kept = append(kept, row)
		}
	}

	return &Table{Header: t.Header, Rows: kept}
}
