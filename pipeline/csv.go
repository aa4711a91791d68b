package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/naramarket/go-naramarket/models"
)

// utf8BOM keeps the Korean column names readable when the file is
// opened in Excel, matching the hosted service's output encoding.
const utf8BOM = "\ufeff"

// CSVOptions configures a CSVSink.
type CSVOptions struct {
	// Append opens an existing file for appending instead of
	// truncating. The existing header is reused and never rewritten.
	Append bool

	// FailOnNewColumns makes Write fail with HeaderMismatchError when
	// rows carry columns the locked header does not have. When false,
	// unknown columns are silently dropped.
	FailOnNewColumns bool
}

// CSVSink appends rows to a CSV file. The column set is locked either
// from the existing file's header (append mode) or from the first
// batch of rows; each Write flushes, so a crash loses at most the
// current batch.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	opts   CSVOptions
	header []string
	mu     sync.Mutex
}

// NewCSVSink opens path for writing. In append mode with an existing
// file, the header row is read back and reused; appending never
// duplicates the header.
func NewCSVSink(path string, opts CSVOptions) (*CSVSink, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	var existingHeader []string
	appendExisting := false
	if opts.Append {
		header, found, err := readExistingHeader(path)
		if err != nil {
			return nil, err
		}
		existingHeader = header
		appendExisting = found
	}

	var f *os.File
	var err error
	if appendExisting {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	} else {
		f, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	if !appendExisting {
		if _, err := f.WriteString(utf8BOM); err != nil {
			f.Close()
			return nil, fmt.Errorf("write bom: %w", err)
		}
	}

	return &CSVSink{
		file:   f,
		writer: csv.NewWriter(f),
		opts:   opts,
		header: existingHeader,
	}, nil
}

func readExistingHeader(path string) ([]string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open existing csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, false, fmt.Errorf("read existing csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	return header, true, nil
}

// Write appends rows. The whole batch is validated against the header
// before any row reaches the file.
func (s *CSVSink) Write(rows []models.Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header == nil {
		s.header = columnsOf(rows)
		if err := s.writer.Write(s.header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	} else if s.opts.FailOnNewColumns {
		if unknown := unknownColumns(s.header, rows); len(unknown) > 0 {
			return &HeaderMismatchError{NewColumns: unknown}
		}
	}

	record := make([]string, len(s.header))
	for _, row := range rows {
		for i, col := range s.header {
			record[i] = row[col]
		}
		if err := s.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Header returns the locked column set, or nil before the first Write
// on a fresh file.
func (s *CSVSink) Header() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return nil
	}
	out := make([]string, len(s.header))
	copy(out, s.header)
	return out
}

// Close flushes and closes the file handle.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return s.file.Close()
}

// Validate ensures the file has content besides the BOM.
func (s *CSVSink) Validate() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= int64(len(utf8BOM)) {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func columnsOf(rows []models.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

func unknownColumns(header []string, rows []models.Row) []string {
	known := make(map[string]struct{}, len(header))
	for _, col := range header {
		known[col] = struct{}{}
	}
	var unknown []string
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			if _, ok := known[col]; ok {
				continue
			}
			if _, dup := seen[col]; dup {
				continue
			}
			seen[col] = struct{}{}
			unknown = append(unknown, col)
		}
	}
	sort.Strings(unknown)
	return unknown
}
