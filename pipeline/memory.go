package pipeline

import (
	"sync"

	"github.com/naramarket/go-naramarket/models"
)

// MemorySink accumulates rows in memory for the crawl_to_memory tool.
// MaxRows bounds accumulation; 0 means unlimited.
type MemorySink struct {
	MaxRows int

	mu   sync.Mutex
	rows []models.Row
}

// Write appends rows, failing with ErrRowLimit once MaxRows is hit.
func (s *MemorySink) Write(rows []models.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.MaxRows > 0 && len(s.rows)+len(rows) > s.MaxRows {
		return ErrRowLimit
	}
	s.rows = append(s.rows, rows...)
	return nil
}

// Rows returns the accumulated rows.
func (s *MemorySink) Rows() []models.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }

// Validate is a no-op; an empty result set is valid in memory mode.
func (s *MemorySink) Validate() error { return nil }
