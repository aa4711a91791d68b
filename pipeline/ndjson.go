package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/naramarket/go-naramarket/models"
)

// NDJSONSink writes newline-delimited JSON rows. This is the same
// intermediate format the hosted service staged crawl output in.
type NDJSONSink struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewNDJSONSink initialises the sink, truncating any existing file.
func NewNDJSONSink(path string) (*NDJSONSink, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create ndjson file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &NDJSONSink{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends rows in NDJSON format.
func (s *NDJSONSink) Write(rows []models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if err := s.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode ndjson row: %w", err)
		}
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush ndjson writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush ndjson writer: %w", err)
	}
	return s.file.Close()
}

// Validate ensures the file has data.
func (s *NDJSONSink) Validate() error {
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat ndjson file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("ndjson file is empty")
	}
	return nil
}
