package rows

import (
	"testing"
)

func ageTable(ages ...string) *Table {
	t := &Table{Header: []string{"name", "age", "city"}}
	for i, age := range ages {
		t.Rows = append(t.Rows, []string{names[i%len(names)], age, "Berlin"})
	}
	return t
}

var names = []string{"Ana", "Boris", "Clara", "Dmitri"}

func TestBounds_InclusiveOnBothEnds(t *testing.T) {
	table := ageTable("15", "18", "40", "41")
	b := Bounds{Column: "age", Min: 18, Max: 40}

	filtered := b.Apply(table)

	if filtered.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", filtered.Len())
	}
	if got := filtered.Rows[0][1]; got != "18" {
		t.Errorf("Rows[0] age = %q, want %q (lower bound is inclusive)", got, "18")
	}
	if got := filtered.Rows[1][1]; got != "40" {
		t.Errorf("Rows[1] age = %q, want %q (upper bound is inclusive)", got, "40")
	}
}

func TestBounds_MissingColumnPassesThrough(t *testing.T) {
	table := &Table{
		Header: []string{"name", "city"},
		Rows: [][]string{
			{"Ana", "Berlin"},
			{"Boris", "Riga"},
		},
	}
	b := Bounds{Column: "age", Min: 18, Max: 40}

	filtered := b.Apply(table)

	if filtered != table {
		t.Error("Apply should return the same table when the column is absent")
	}
	if filtered.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (pass-through keeps all rows)", filtered.Len())
	}
}

func TestBounds_UnparsableValuesDropped(t *testing.T) {
	table := ageTable("25", "unknown", "", "30")
	b := Bounds{Column: "age", Min: 18, Max: 40}

	filtered := b.Apply(table)

	if filtered.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", filtered.Len())
	}
	for _, row := range filtered.Rows {
		if row[1] != "25" && row[1] != "30" {
			t.Errorf("unexpected surviving row: %v", row)
		}
	}
}

func TestBounds_ShortRowsDropped(t *testing.T) {
	table := &Table{
		Header: []string{"name", "age"},
		Rows: [][]string{
			{"Ana", "25"},
			{"Boris"}, // missing the age field entirely
		},
	}
	b := Bounds{Column: "age", Min: 18, Max: 40}

	filtered := b.Apply(table)

	if filtered.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", filtered.Len())
	}
}

func TestBounds_FloatValues(t *testing.T) {
	table := ageTable("17.99", "18.0", "39.5", "40.01")
	b := Bounds{Column: "age", Min: 18, Max: 40}

	filtered := b.Apply(table)

	if filtered.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", filtered.Len())
	}
}

func TestBounds_HeaderPreserved(t *testing.T) {
	table := ageTable("25")
	b := Bounds{Column: "age", Min: 18, Max: 40}

	filtered := b.Apply(table)

	if len(filtered.Header) != 3 || filtered.Header[1] != "age" {
		t.Errorf("Header = %v, want original header preserved", filtered.Header)
	}
}
