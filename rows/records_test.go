package rows

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoad_HeaderAndRows(t *testing.T) {
	path := writeFixture(t, "name,age\nAna,25\nBoris,31\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	wantHeader := []string{"name", "age"}
	if !reflect.DeepEqual(table.Header, wantHeader) {
		t.Errorf("Header = %v, want %v", table.Header, wantHeader)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
	if table.Empty() {
		t.Error("Empty() = true, want false")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeFixture(t, "")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !table.Empty() {
		t.Error("Empty() = false, want true for zero-byte file")
	}
}

func TestLoad_HeaderOnlyIsEmpty(t *testing.T) {
	path := writeFixture(t, "name,age\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !table.Empty() {
		t.Error("Empty() = false, want true for header-only file")
	}
	if len(table.Header) != 2 {
		t.Errorf("Header = %v, want the header row parsed", table.Header)
	}
}

func TestLoad_RaggedRowsTolerated(t *testing.T) {
	path := writeFixture(t, "a,b,c\n1,2,3\n1,2\n1,2,3,4\n")

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (ragged rows are kept)", table.Len())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestColumnIndex(t *testing.T) {
	table := &Table{Header: []string{"name", "age", "city"}}

	idx, ok := table.ColumnIndex("age")
	if !ok || idx != 1 {
		t.Errorf("ColumnIndex(age) = (%d, %v), want (1, true)", idx, ok)
	}

	if _, ok := table.ColumnIndex("salary"); ok {
		t.Error("ColumnIndex(salary) = true, want false")
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	table := &Table{
		Header: []string{"name", "age"},
		Rows:   [][]string{{"Ana", "25"}, {"Boris", "31"}},
	}
	path := filepath.Join(t.TempDir(), "out.csv")

	if err := table.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(back.Header, table.Header) {
		t.Errorf("Header = %v, want %v", back.Header, table.Header)
	}
	if !reflect.DeepEqual(back.Rows, table.Rows) {
		t.Errorf("Rows = %v, want %v", back.Rows, table.Rows)
	}
}
