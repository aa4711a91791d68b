// Package pipeline provides row sinks for crawl output: CSV with
// append/header compatibility, newline-delimited JSON, in-memory
// accumulation, and a dual fan-out.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/naramarket/go-naramarket/models"
)

// ErrRowLimit is returned by MemorySink when its row cap is hit.
var ErrRowLimit = errors.New("pipeline: row limit reached")

// RowSink receives normalized rows incrementally. Implementations are
// row-buffered, never dataset-buffered: memory use is bounded by one
// Write call's worth of rows.
type RowSink interface {
	Write(rows []models.Row) error
	Close() error
	Validate() error
}

// HeaderMismatchError reports that rows carry columns an existing CSV
// header does not have. Surfaced before any row is written.
type HeaderMismatchError struct {
	NewColumns []string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("csv header mismatch: new columns %v", e.NewColumns)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
