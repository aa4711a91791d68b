package pipeline

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/naramarket/go-naramarket/models"
)

func testRows() []models.Row {
	return []models.Row{
		{"prdctClsfcNoNm": "데스크톱컴퓨터", "attr_name": "CPU", "attr_value": "8코어", "window_start": "20250101"},
		{"prdctClsfcNoNm": "데스크톱컴퓨터", "attr_name": "메모리", "attr_value": "16GB", "window_start": "20250101"},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	content := strings.TrimPrefix(string(raw), utf8BOM)
	records, err := csv.NewReader(strings.NewReader(content)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return records
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := NewCSVSink(path, CSVOptions{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Write(testRows()); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.Write(testRows()); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if err := sink.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records := readCSV(t, path)
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5 (header + 4 rows)", len(records))
	}

	wantHeader := []string{"attr_name", "attr_value", "prdctClsfcNoNm", "window_start"}
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("header = %v, want %v (sorted)", records[0], wantHeader)
		}
	}
}

func TestCSVSinkWritesBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := NewCSVSink(path, CSVOptions{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Write(testRows()[:1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	sink.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.HasPrefix(string(raw), utf8BOM) {
		t.Fatalf("new csv file should start with a UTF-8 BOM")
	}
}

func TestCSVSinkAppendReusesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	first, err := NewCSVSink(path, CSVOptions{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := first.Write(testRows()); err != nil {
		t.Fatalf("write: %v", err)
	}
	first.Close()

	second, err := NewCSVSink(path, CSVOptions{Append: true})
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	if got := second.Header(); len(got) != 4 {
		t.Fatalf("reopened header = %v, want 4 columns", got)
	}
	if err := second.Write(testRows()); err != nil {
		t.Fatalf("append write: %v", err)
	}
	second.Close()

	records := readCSV(t, path)
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5 (single header, 4 rows)", len(records))
	}
	for i, record := range records[1:] {
		if record[0] == "attr_name" {
			t.Fatalf("row %d is a duplicated header", i)
		}
	}
}

func TestCSVSinkHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	sink, err := NewCSVSink(path, CSVOptions{FailOnNewColumns: true})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	if err := sink.Write(testRows()); err != nil {
		t.Fatalf("write: %v", err)
	}

	bad := []models.Row{
		{"prdctClsfcNoNm": "모니터", "surprise_column": "x"},
		{"prdctClsfcNoNm": "키보드", "another_surprise": "y"},
	}
	err = sink.Write(bad)
	var mismatch *HeaderMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected HeaderMismatchError, got %v", err)
	}
	wantCols := []string{"another_surprise", "surprise_column"}
	if len(mismatch.NewColumns) != 2 || mismatch.NewColumns[0] != wantCols[0] || mismatch.NewColumns[1] != wantCols[1] {
		t.Fatalf("new columns = %v, want %v", mismatch.NewColumns, wantCols)
	}

	// The whole batch is rejected: nothing from it reaches the file.
	sink.Close()
	records := readCSV(t, path)
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (header + 2 rows, rejected batch absent)", len(records))
	}
}

func TestCSVSinkAppendHeaderMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	first, err := NewCSVSink(path, CSVOptions{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := first.Write(testRows()); err != nil {
		t.Fatalf("write: %v", err)
	}
	first.Close()

	// Reopening locks the header from the existing file; the very
	// first Write in the new session must already be validated
	// against it.
	second, err := NewCSVSink(path, CSVOptions{Append: true, FailOnNewColumns: true})
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	bad := []models.Row{{"prdctClsfcNoNm": "모니터", "surprise_column": "x"}}
	err = second.Write(bad)
	var mismatch *HeaderMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected HeaderMismatchError, got %v", err)
	}
	if len(mismatch.NewColumns) != 1 || mismatch.NewColumns[0] != "surprise_column" {
		t.Fatalf("new columns = %v, want [surprise_column]", mismatch.NewColumns)
	}
	second.Close()

	records := readCSV(t, path)
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (rejected batch not appended)", len(records))
	}
}

func TestCSVSinkDropsUnknownColumnsWhenAllowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	sink, err := NewCSVSink(path, CSVOptions{FailOnNewColumns: false})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Write(testRows()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write([]models.Row{{"prdctClsfcNoNm": "모니터", "surprise_column": "x"}}); err != nil {
		t.Fatalf("write with unknown column: %v", err)
	}
	sink.Close()

	records := readCSV(t, path)
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	if len(records[0]) != 4 {
		t.Fatalf("header widened to %v, should stay locked", records[0])
	}
}

func TestCSVSinkMissingColumnsBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	sink, err := NewCSVSink(path, CSVOptions{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Write(testRows()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Write([]models.Row{{"prdctClsfcNoNm": "모니터"}}); err != nil {
		t.Fatalf("write sparse row: %v", err)
	}
	sink.Close()

	records := readCSV(t, path)
	last := records[len(records)-1]
	// Header order is attr_name, attr_value, prdctClsfcNoNm, window_start.
	if last[0] != "" || last[1] != "" || last[2] != "모니터" || last[3] != "" {
		t.Fatalf("sparse row = %v, want blanks for missing columns", last)
	}
}

func TestCSVSinkValidateEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := NewCSVSink(path, CSVOptions{})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Validate(); err == nil {
		t.Fatalf("a BOM-only file should fail validation")
	}
}
